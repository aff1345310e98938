// Package ui formats CLI output: Graph responses, sign-in prompts, account
// and token status, and transfer progress.
package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tonimelisma/msgraph-client/pkg/identity"
)

// Success prints a simple success message to standard output.
func Success(msg string) {
	fmt.Println(msg)
}

// PrintError prints an error to standard error.
func PrintError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

// PrintJSON pretty-prints a JSON document. Anything that is not JSON is
// written unchanged.
func PrintJSON(w io.Writer, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// DisplayDeviceCode tells the user where to enter the device code.
func DisplayDeviceCode(w io.Writer, auth *identity.DeviceAuthorization) {
	if auth.Message != "" {
		fmt.Fprintln(w, auth.Message)
		return
	}
	fmt.Fprintf(w, "To sign in, open %s and enter the code %s\n", auth.VerificationURI, auth.UserCode)
}

// DisplayAccount prints the signed-in account.
func DisplayAccount(w io.Writer, account *identity.Account) {
	fmt.Fprintf(w, "Logged in as: %s (%s)\n", orNA(account.Name), orNA(account.Username))
	if account.TenantID != "" {
		fmt.Fprintf(w, "  Tenant:     %s\n", account.TenantID)
	}
	if account.ObjectID != "" {
		fmt.Fprintf(w, "  Object ID:  %s\n", account.ObjectID)
	}
}

// DisplayTokenStatus prints the cached token's scopes and expiry.
func DisplayTokenStatus(w io.Writer, tok *identity.Token, now time.Time) {
	switch {
	case tok.ExpiresAt.IsZero():
		fmt.Fprintln(w, "  Token:      no expiry recorded")
	case now.Before(tok.ExpiresAt):
		fmt.Fprintf(w, "  Token:      expires in %s\n", tok.ExpiresAt.Sub(now).Round(time.Second))
	default:
		fmt.Fprintf(w, "  Token:      expired %s ago\n", now.Sub(tok.ExpiresAt).Round(time.Second))
	}
	if len(tok.Scopes) > 0 {
		fmt.Fprintf(w, "  Scopes:     %s\n", strings.Join(tok.Scopes, " "))
	}
	if tok.RefreshToken != "" {
		fmt.Fprintln(w, "  Refresh:    available")
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// formatBytes converts a size in bytes to a human-readable string using
// IEC units.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// NewProgressBar returns a byte progress bar on standard error, so it does
// not mix with data on standard output.
func NewProgressBar(maxBytes int64, description string) *progressbar.ProgressBar {
	if description == "" {
		description = "Processing..."
	}
	return progressbar.NewOptions64(
		maxBytes,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

// UploadSummary describes a finished upload.
func UploadSummary(remotePath string, size int64, resumed bool) string {
	verb := "Uploaded"
	if resumed {
		verb = "Resumed and uploaded"
	}
	return fmt.Sprintf("%s %s (%s)", verb, remotePath, formatBytes(size))
}
