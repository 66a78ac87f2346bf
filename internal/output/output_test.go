package output_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kinecosystem/kinmigrate/internal/output"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := map[string]output.Format{
		"json":   output.FormatJSON,
		" TEXT ": output.FormatText,
		"auto":   output.FormatAuto,
		"yaml":   output.FormatAuto,
		"":       output.FormatAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, output.ParseFormat(in), in)
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatAuto))
	assert.Equal(t, output.FormatText, output.DetectFormat(&buf, output.FormatText))
	assert.False(t, output.IsTerminal(&buf))
}

type balance struct {
	Address string `json:"address"`
	Kin     string `json:"kin"`
}

func (b balance) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s holds %s KIN\n", b.Address, b.Kin)
	return err
}

func TestFormatter_Print(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatJSON, &buf)
	require.True(t, f.IsJSON())
	require.NoError(t, f.Print(balance{Address: "GA", Kin: "10"}))
	require.NoError(t, f.Printf("progress %d\n", 1))

	var got balance
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "10", got.Kin)

	buf.Reset()
	f = output.NewFormatter(output.FormatText, &buf)
	require.NoError(t, f.Print("plain"))
	require.NoError(t, f.Printf("n=%d\n", 2))
	assert.Equal(t, "plain\nn=2\n", buf.String())
	assert.Equal(t, output.FormatText, f.Format())
	assert.Same(t, &buf, f.Writer())
}

func TestFormatter_PrintTexter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	table := output.NewTable("ADDRESS", "BALANCE").AlignRight(1)
	table.AddRow("GA", "5")
	table.AddRow("GBB", "1250.5")
	require.NoError(t, output.NewFormatter(output.FormatText, &buf).Print(table))
	assert.Equal(t, ""+
		"ADDRESS  BALANCE\n"+
		"-------  -------\n"+
		"GA             5\n"+
		"GBB       1250.5\n", buf.String())
	assert.Equal(t, 2, table.Len())
}

func TestTable_RaggedAndEmpty(t *testing.T) {
	t.Parallel()
	assert.Empty(t, output.NewTable().String())

	table := output.NewTable("A")
	table.AddRow("x", "extra")
	table.AddRow()
	assert.Equal(t, "A\n-  -----\nx  extra\n\n", table.String())
}

func TestTable_Unicode(t *testing.T) {
	t.Parallel()
	table := output.NewTable("NAME", "X")
	table.AddRow("ünï", "1")
	assert.Equal(t, "NAME  X\n----  -\nünï   1\n", table.String())
}

func TestFormatError_Text(t *testing.T) {
	t.Parallel()
	err := kinerr.WithSuggestion(
		kinerr.WithCause(kinerr.ErrMigrationFailed, errors.New("HTTP 400"), map[string]string{"message": "not burned", "code": "4001"}),
		"burn the account first",
	)
	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, err, output.FormatText))
	assert.Equal(t, ""+
		"Error: "+kinerr.ErrMigrationFailed.Message+"\n"+
		"\nDetails:\n"+
		"  code: 4001\n"+
		"  message: not burned\n"+
		"\nCause: HTTP 400\n"+
		"\nSuggestion: burn the account first\n", buf.String())
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := kinerr.WithDetails(kinerr.ErrMissingAccount, map[string]string{"address": "GA"})
	require.NoError(t, output.FormatError(&buf, err, output.FormatJSON))

	var got output.ErrorOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, kinerr.ErrMissingAccount.Code, got.Error.Code)
	assert.Equal(t, "GA", got.Error.Details["address"])
	assert.Equal(t, kinerr.ErrMissingAccount.ExitCode, got.Error.ExitCode)
}

func TestFormatError_Generic(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, output.FormatError(&buf, errors.New("boom"), output.FormatJSON))
	assert.Contains(t, buf.String(), `"code": "GENERAL_ERROR"`)
	assert.Contains(t, buf.String(), `"exit_code": 1`)

	require.NoError(t, output.FormatError(&buf, nil, output.FormatJSON))
}

func TestFormatSuccess(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, output.FormatSuccess(&buf, "done", output.FormatText))
	assert.Equal(t, "done\n", buf.String())

	buf.Reset()
	require.NoError(t, output.FormatSuccess(&buf, "done", output.FormatJSON))
	assert.JSONEq(t, `{"status":"success","message":"done"}`, buf.String())
}

func TestRenderQR_NotTerminal(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.False(t, output.RenderQR(&buf, "payload", output.DefaultQRConfig()))
	assert.Empty(t, buf.String())
}
