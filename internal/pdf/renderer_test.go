package pdf

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/require"
)

func TestRodRenderer_Render(t *testing.T) {
	if testing.Short() || os.Getenv("PDF_RENDER_TEST") == "" {
		t.Skip("set PDF_RENDER_TEST=1 to run with a local Chrome")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("chrome not found")
	}
	r := NewRodRenderer(RodConfig{ChromeBin: bin, Timeout: 30 * time.Second})
	defer r.Close()

	data, err := r.Render(context.Background(), "<html><body><h1>Vendre après une succession</h1></body></html>")
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}
