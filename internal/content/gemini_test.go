package content

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"receiptgen/internal/config"
	"receiptgen/internal/receipt"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	text     string
	textErr  error
	image    []byte
	imageErr error

	contentCalls int
	imageCalls   int
	lastConfig   *genai.GenerateContentConfig
	lastPrompt   string
	lastImageCfg *genai.GenerateImagesConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contentCalls++
	f.lastConfig = cfg
	if f.textErr != nil {
		return nil, f.textErr
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func (f *fakeModels) GenerateImages(ctx context.Context, model, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.imageCalls++
	f.lastPrompt = prompt
	f.lastImageCfg = cfg
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	if f.image == nil {
		return &genai.GenerateImagesResponse{}, nil
	}
	return &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{{Image: &genai.Image{ImageBytes: f.image}}},
	}, nil
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeDataURL(t *testing.T, url string) image.Image {
	t.Helper()
	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix), url)
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestPrincipalName(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
		want string
	}{
		{"two words", "  Rajesh Kumar\n", nil, "Rajesh Kumar"},
		{"single word rejected", "Rajesh", nil, ""},
		{"quotes rejected", `"Rajesh Kumar"`, nil, ""},
		{"empty rejected", "", nil, ""},
		{"remote failure", "", errors.New("quota exceeded"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModels{text: tt.text, textErr: tt.err}
			g := NewGemini(m, Options{})
			assert.Equal(t, tt.want, g.PrincipalName(context.Background()))
			assert.Equal(t, 1, m.contentCalls)
		})
	}
}

func TestSignatureImage(t *testing.T) {
	m := &fakeModels{image: testPNG(t, 800, 600)}
	g := NewGemini(m, Options{SignatureMaxPx: 120})

	url := g.SignatureImage(context.Background(), "Rajesh Kumar", 3)
	img := decodeDataURL(t, url)
	assert.Equal(t, 120, img.Bounds().Dy())
	assert.Equal(t, 160, img.Bounds().Dx())

	require.NotNil(t, m.lastImageCfg)
	assert.Equal(t, "4:3", m.lastImageCfg.AspectRatio)
	assert.Equal(t, "image/png", m.lastImageCfg.OutputMIMEType)
	assert.Contains(t, m.lastPrompt, "'Rajesh Kumar'")
	assert.Contains(t, m.lastPrompt, "#FFFFFF")
}

func TestSignatureImage_Failures(t *testing.T) {
	t.Run("remote error", func(t *testing.T) {
		g := NewGemini(&fakeModels{imageErr: errors.New("boom")}, Options{})
		assert.Empty(t, g.SignatureImage(context.Background(), "Rajesh Kumar", 3))
	})
	t.Run("no images", func(t *testing.T) {
		g := NewGemini(&fakeModels{}, Options{})
		assert.Empty(t, g.SignatureImage(context.Background(), "Rajesh Kumar", 3))
	})
	t.Run("blank name skips the call", func(t *testing.T) {
		m := &fakeModels{image: testPNG(t, 10, 10)}
		g := NewGemini(m, Options{})
		assert.Empty(t, g.SignatureImage(context.Background(), "  ", 3))
		assert.Zero(t, m.imageCalls)
	})
	t.Run("undecodable bytes pass through", func(t *testing.T) {
		g := NewGemini(&fakeModels{image: []byte("not a png")}, Options{})
		url := g.SignatureImage(context.Background(), "Rajesh Kumar", 3)
		assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("not a png")), url)
	})
}

func TestSignaturePrompt_ClampsDetail(t *testing.T) {
	assert.Equal(t, SignaturePrompt("A B", 1), SignaturePrompt("A B", -4))
	assert.Equal(t, SignaturePrompt("A B", 3), SignaturePrompt("A B", 9))
	assert.NotEqual(t, SignaturePrompt("A B", 1), SignaturePrompt("A B", 3))
}

func TestNamePairs(t *testing.T) {
	m := &fakeModels{text: `[{"studentName":"Ishaan Rao","parentName":"Mr. Rao"},{"studentName":"Myra Jain","parentName":"Mrs. Jain"}]`}
	g := NewGemini(m, Options{})

	got := g.NamePairs(context.Background(), 2)
	want := []receipt.NamePair{
		{StudentName: "Ishaan Rao", ParentName: "Mr. Rao"},
		{StudentName: "Myra Jain", ParentName: "Mrs. Jain"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NamePairs mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, m.lastConfig)
	assert.Equal(t, "application/json", m.lastConfig.ResponseMIMEType)
	assert.Equal(t, genai.TypeArray, m.lastConfig.ResponseSchema.Type)
}

func TestNamePairs_Rejects(t *testing.T) {
	for _, count := range []int{0, -1, 101} {
		m := &fakeModels{text: "[]"}
		assert.Nil(t, NewGemini(m, Options{}).NamePairs(context.Background(), count))
		assert.Zero(t, m.contentCalls, "count %d should not reach the model", count)
	}

	for _, text := range []string{"not json", `{"studentName":"x"}`, `[{"studentName":"Ishaan Rao"}]`} {
		g := NewGemini(&fakeModels{text: text}, Options{})
		assert.Nil(t, g.NamePairs(context.Background(), 1), text)
	}
}

func TestNew_WithoutAPIKeyIsDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Content.APIKey = ""
	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, Disabled{}, p)
	assert.Empty(t, p.PrincipalName(context.Background()))
	assert.Empty(t, p.SignatureImage(context.Background(), "A B", 3))
	assert.Nil(t, p.NamePairs(context.Background(), 5))
}

func TestNormalizeSignature_SmallImageKeepsSize(t *testing.T) {
	out, err := NormalizeSignature(testPNG(t, 100, 50), 240)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())
}
