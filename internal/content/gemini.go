package content

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"

	"google.golang.org/genai"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "imagen-4.0-generate-001"

	principalPrompt = "Generate a single, realistic full name for a school principal or accountant in India. " +
		"The name should sound professional. Do not add any extra text, titles, or quotation marks. Just the name."

	namePairsPrompt = "Generate %d realistic, unique, and diverse Indian full names for students. " +
		"For each student, also generate a corresponding realistic parent/guardian name " +
		"(e.g., using a title like 'Mr.' or 'Mrs.' with the student's last name)."
)

// signatureStyles is indexed by detail level - 1.
var signatureStyles = []string{
	"- **Style:** A quick, simple cursive signature in black ink.",
	"- **Style:** A neat, legible cursive signature in black ink on a plain white background.",
	"- **Ink:** The signature MUST be in solid, crisp black ink, simulating a fine-tip pen.\n" +
		"- **Background:** The background MUST be a pure, solid white (#FFFFFF). There should be absolutely no shadows, gradients, textures, or any other artifacts.\n" +
		"- **Style:** The signature style should be an elegant, legible cursive script suitable for an official document.",
}

// Gemini implements Provider on top of the Gemini and Imagen models.
type Gemini struct {
	models Models
	opts   Options
	log    *logging.Logger
}

// NewGemini builds a provider over models. Empty options fall back to the
// default models, 4:3 aspect ratio and a 240 px signature height.
func NewGemini(models Models, opts Options) *Gemini {
	if opts.TextModel == "" {
		opts.TextModel = defaultTextModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = defaultImageModel
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = "4:3"
	}
	if opts.SignatureMaxPx <= 0 {
		opts.SignatureMaxPx = 240
	}
	return &Gemini{models: models, opts: opts, log: logging.Get(logging.CategoryContent)}
}

func (g *Gemini) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.opts.Timeout)
}

// SignaturePrompt builds the image prompt for name at the given detail level.
// detail is clamped to 1..3.
func SignaturePrompt(name string, detail int) string {
	if detail < 1 {
		detail = 1
	}
	if detail > len(signatureStyles) {
		detail = len(signatureStyles)
	}
	return fmt.Sprintf("Generate a hyperrealistic, high-resolution, professional handwritten signature for the name '%s'.\n%s\n"+
		"- **Isolation:** The final image must contain ONLY the signature. No other elements, text, or borders.",
		name, signatureStyles[detail-1])
}

func (g *Gemini) SignatureImage(ctx context.Context, name string, detail int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		g.log.Warn("signature requested without a name")
		return ""
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.models.GenerateImages(ctx, g.opts.ImageModel, SignaturePrompt(name, detail), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/png",
		AspectRatio:    g.opts.AspectRatio,
	})
	if err != nil {
		g.log.Error("error generating signature for %q: %v", name, err)
		return ""
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil ||
		len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		g.log.Warn("signature response for %q contained no image", name)
		return ""
	}

	raw := resp.GeneratedImages[0].Image.ImageBytes
	img, err := NormalizeSignature(raw, g.opts.SignatureMaxPx)
	if err != nil {
		g.log.Debug("keeping signature as returned: %v", err)
		img = raw
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
}

func (g *Gemini) PrincipalName(ctx context.Context) string {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.opts.TextModel, genai.Text(principalPrompt), nil)
	if err != nil {
		g.log.Error("error generating principal name: %v", err)
		return ""
	}
	name := strings.TrimSpace(responseText(resp))
	if !acceptableName(name) {
		g.log.Warn("generated name was not in the expected format: %q", name)
		return ""
	}
	return name
}

func acceptableName(name string) bool {
	return name != "" && len(strings.Split(name, " ")) >= 2 && !strings.Contains(name, `"`)
}

// namePairsSchema constrains the model to an array of
// {studentName, parentName} objects.
var namePairsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"studentName": {Type: genai.TypeString, Description: "The full name of the student."},
			"parentName":  {Type: genai.TypeString, Description: "The full name of the student's parent or guardian."},
		},
		Required: []string{"studentName", "parentName"},
	},
}

type rawPair struct {
	StudentName *string `json:"studentName"`
	ParentName  *string `json:"parentName"`
}

func (g *Gemini) NamePairs(ctx context.Context, count int) []receipt.NamePair {
	if !ValidCount(count) {
		g.log.Warn("name pair count %d outside 1..%d", count, MaxNamePairs)
		return nil
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.opts.TextModel, genai.Text(fmt.Sprintf(namePairsPrompt, count)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   namePairsSchema,
	})
	if err != nil {
		g.log.Error("error generating names: %v", err)
		return nil
	}

	pairs, err := parsePairs(responseText(resp))
	if err != nil {
		g.log.Error("generated names response was not in the expected format: %v", err)
		return nil
	}
	g.log.Info("generated %d name pairs", len(pairs))
	return pairs
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

func parsePairs(text string) ([]receipt.NamePair, error) {
	var raw []rawPair
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	pairs := make([]receipt.NamePair, 0, len(raw))
	for i, p := range raw {
		if p.StudentName == nil || p.ParentName == nil {
			return nil, fmt.Errorf("entry %d is missing studentName or parentName", i)
		}
		pairs = append(pairs, receipt.NamePair{StudentName: *p.StudentName, ParentName: *p.ParentName})
	}
	return pairs, nil
}
