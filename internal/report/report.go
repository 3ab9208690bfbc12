package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tankprobe/internal/models"
)

const rule = "=================================================="

var tips = []string{
	"If TCP connection fails: check that the server is running and the port is open",
	"If no response: check the server logs for the connection attempt",
	"If timeout: the server might not be handling the protocol correctly",
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// Preview returns at most n leading bytes of data and whether it was cut.
func Preview(data []byte, n int) ([]byte, bool) {
	if n <= 0 || len(data) <= n {
		return data, false
	}
	return data[:n], true
}

// quotedPreview renders the leading bytes Go-quoted, so binary replies survive
// text output, with "..." appended when the reply was cut.
func quotedPreview(data []byte, n int) string {
	preview, cut := Preview(data, n)
	quoted := strconv.Quote(string(preview))
	if cut {
		quoted += "..."
	}
	return quoted
}

// Console writes the human-readable, stage by stage report for one probe.
func Console(w io.Writer, ep models.Endpoint, res models.ProbeResult, previewBytes int) error {
	p := &printer{w: w}

	p.printf("Testing connection to %s\n", ep.Address())
	p.printf("%s\n", rule)

	p.printf("1. Testing TCP connection...\n")
	if !res.Connected {
		p.printf("   [FAIL] TCP connection failed (%s)\n", describe(res.ConnectError))
		footer(p, res)
		return p.err
	}
	p.printf("   [ OK ] TCP connection successful!%s\n", took(res.Timing.ConnectMS))

	p.printf("2. Testing basic communication...\n")
	if !res.Sent {
		p.printf("   [FAIL] Communication error: %s\n", describe(res.SendError))
		footer(p, res)
		return p.err
	}
	p.printf("   [ OK ] Message sent successfully!\n")

	p.printf("3. Waiting for server response...\n")
	switch res.Outcome {
	case models.StateReceived:
		p.printf("   [ OK ] Server responded with %d bytes!%s\n", len(res.Received), took(res.Timing.ReceiveMS))
		p.printf("   Response preview: %s\n", quotedPreview(res.Received, previewBytes))
	case models.StateReceiveEmpty:
		p.printf("   [WARN] No response received\n")
	case models.StateReceiveTimeout:
		p.printf("   [WARN] Timeout waiting for response\n")
	default:
		p.printf("   [FAIL] Communication error: %s\n", describe(res.ReceiveError))
	}

	footer(p, res)
	return p.err
}

// Tips writes the static troubleshooting hints.
func Tips(w io.Writer) error {
	p := &printer{w: w}
	p.printf("\nTips:\n")
	for _, tip := range tips {
		p.printf("   - %s\n", tip)
	}
	return p.err
}

type jsonReport struct {
	models.Record
	OK              bool   `json:"ok"`
	ReceivedBytes   int    `json:"received_bytes"`
	ReceivedPreview string `json:"received_preview,omitempty"`
}

// JSON writes rec as an indented JSON document. The preview is quoted the same
// way as in the console report.
func JSON(w io.Writer, rec models.Record, previewBytes int) error {
	doc := jsonReport{
		Record:        rec,
		OK:            rec.Result.OK(),
		ReceivedBytes: len(rec.Result.Received),
	}
	if len(rec.Result.Received) > 0 {
		doc.ReceivedPreview = quotedPreview(rec.Result.Received, previewBytes)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func footer(p *printer, res models.ProbeResult) {
	p.printf("%s\n", rule)
	p.printf("Finished in %.1f ms (outcome: %s)\n", res.Timing.TotalMS, strings.ReplaceAll(string(res.Outcome), "_", " "))
}

func describe(err *models.StageError) string {
	if err == nil {
		return "unknown error"
	}
	if err.Message == "" || err.Message == string(err.Kind) {
		return string(err.Kind)
	}
	return string(err.Kind) + ": " + err.Message
}

func took(ms *float64) string {
	if ms == nil {
		return ""
	}
	return fmt.Sprintf(" (%.1f ms)", *ms)
}
