package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"receiptgen/internal/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	want := []string{"serve", "render", "bulk", "names", "settings", "login", "logout", "whoami", "members"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}

	sub, _, err := rootCmd.Find([]string{"settings", "reset"})
	require.NoError(t, err)
	assert.Equal(t, "reset", sub.Name())

	for _, flag := range []string{"config", "verbose", "timeout"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestLoadRecord(t *testing.T) {
	base := receipt.Default()

	rec, err := loadRecord("", base)
	require.NoError(t, err)
	assert.Equal(t, base, rec)

	path := filepath.Join(t.TempDir(), "rec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"studentName":"Diya Iyer","paymentAmount":9900}`), 0o644))
	rec, err = loadRecord(path, base)
	require.NoError(t, err)
	assert.Equal(t, "Diya Iyer", rec.StudentName)
	assert.Equal(t, 9900.0, rec.PaymentAmount)
	assert.Equal(t, base.SchoolName, rec.SchoolName)

	require.NoError(t, os.WriteFile(path, []byte(`{"paymentMode":"Barter"}`), 0o644))
	_, err = loadRecord(path, base)
	assert.ErrorIs(t, err, receipt.ErrInvalidMode)
}

func TestReadNames(t *testing.T) {
	text, err := readNames("-", strings.NewReader("A\nB\n"))
	require.NoError(t, err)
	assert.Equal(t, "A\nB\n", text)

	_, err = readNames(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("s3cret\r\nignored"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	pw, err = readPassword(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)
}
