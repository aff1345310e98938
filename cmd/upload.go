package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tonimelisma/msgraph-client/internal/app"
	"github.com/tonimelisma/msgraph-client/internal/session"
	"github.com/tonimelisma/msgraph-client/internal/ui"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-file> <remote-path>",
	Short: "Upload a file to OneDrive with a resumable session",
	Long: `Uploads a local file to a path in the signed-in user's OneDrive, in chunks
of --chunk-size bytes (a multiple of 320 KiB). An interrupted upload is saved
and resumes from the first range the server still expects when the same
command is run again. --cancel discards a saved upload instead.`,
	Example: `  msgraph-client upload report.pdf /Documents/report.pdf
  msgraph-client upload video.mp4 /Videos/video.mp4 --chunk-size 10485760`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return uploadLogic(a, cmd, args)
	},
}

// uploadSessionPath addresses createUploadSession for a drive path.
func uploadSessionPath(remotePath string) string {
	return "/me/drive/root:/" + strings.Trim(remotePath, "/") + ":/createUploadSession"
}

func parseConflict(raw string) (graph.ConflictBehavior, error) {
	switch c := graph.ConflictBehavior(raw); c {
	case graph.ConflictFail, graph.ConflictReplace, graph.ConflictRename:
		return c, nil
	}
	return "", fmt.Errorf("--conflict must be fail, replace or rename, got %q", raw)
}

func uploadLogic(a *app.App, cmd *cobra.Command, args []string) error {
	localPath, remotePath := args[0], args[1]
	if strings.Trim(remotePath, "/") == "" {
		return fmt.Errorf("remote path must name a file")
	}
	chunkSize, _ := cmd.Flags().GetInt64("chunk-size")
	if chunkSize <= 0 {
		chunkSize = a.Config.ChunkSize
	}
	if chunkSize%graph.UploadAlignment != 0 {
		return fmt.Errorf("--chunk-size must be a multiple of %d bytes, got %d", graph.UploadAlignment, chunkSize)
	}
	conflictFlag, _ := cmd.Flags().GetString("conflict")
	conflict, err := parseConflict(conflictFlag)
	if err != nil {
		return err
	}
	cancelUpload, _ := cmd.Flags().GetBool("cancel")

	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("local file '%s' is not readable: %w", localPath, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	client, err := graphClient(ctx, cmd, a)
	if err != nil {
		return err
	}

	state, err := a.Sessions.Load(localPath, remotePath)
	if err != nil {
		return fmt.Errorf("loading upload state: %w", err)
	}
	if state != nil && state.ChunkSize > 0 {
		chunkSize = state.ChunkSize
	}
	reader, err := graph.OpenByteRangeReader(localPath, chunkSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	if cancelUpload {
		return cancelUploadLogic(ctx, a, cmd, client, reader, state)
	}

	us, resumed := resumeUpload(ctx, a, client, reader, state)
	if us == nil {
		us, err = client.Request(http.MethodPost, uploadSessionPath(remotePath)).
			UploadSession(ctx, reader, &graph.UploadSessionOptions{ConflictBehavior: conflict})
		if err != nil {
			return err
		}
		state = &session.State{
			UploadURL:          us.UploadURL(),
			ExpirationDateTime: us.Expiration(),
			LocalPath:          localPath,
			RemotePath:         remotePath,
			ChunkSize:          chunkSize,
		}
		if err := a.Sessions.Save(state); err != nil {
			a.Logger.Warnf("Could not save upload state: %v", err)
		}
	}

	bar := ui.NewProgressBar(reader.Len(), "Uploading "+filepath.Base(localPath))
	_ = bar.Set64(us.Uploaded())
	resp, err := us.Run(ctx, func(uploaded, _ int64) {
		_ = bar.Set64(uploaded)
		state.CompletedBytes = uploaded
		if err := a.Sessions.Save(state); err != nil {
			a.Logger.Warnf("Could not save upload state: %v", err)
		}
	})
	_ = bar.Finish()
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Upload interrupted. Run the same command again to resume.")
		}
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	if err := a.Sessions.Delete(localPath, remotePath); err != nil {
		a.Logger.Warnf("Could not delete upload state: %v", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, ui.UploadSummary(remotePath, reader.Len(), resumed))
	if resp != nil {
		var item struct {
			ID string `json:"id"`
		}
		if err := resp.JSON(&item); err == nil && item.ID != "" {
			fmt.Fprintf(out, "Item ID: %s\n", item.ID)
		}
	}
	return nil
}

// resumeUpload continues a saved session from the first range the server
// still expects. A session the server no longer knows is discarded.
func resumeUpload(ctx context.Context, a *app.App, client *graph.Client, reader *graph.ByteRangeReader, state *session.State) (*graph.UploadSession, bool) {
	if state == nil {
		return nil, false
	}
	us, err := graph.ResumeUploadSession(client, state.UploadURL, reader)
	if err == nil {
		var info *graph.UploadSessionInfo
		if info, err = us.Status(ctx); err == nil {
			err = us.Reconcile(info)
		}
	}
	if err != nil {
		a.Logger.Warnf("Discarding saved upload session: %v", err)
		if delErr := a.Sessions.Delete(state.LocalPath, state.RemotePath); delErr != nil {
			a.Logger.Warnf("Could not delete upload state: %v", delErr)
		}
		return nil, false
	}
	a.Logger.Infof("Resuming upload from %d bytes", us.Uploaded())
	return us, true
}

func cancelUploadLogic(ctx context.Context, a *app.App, cmd *cobra.Command, client *graph.Client, reader *graph.ByteRangeReader, state *session.State) error {
	out := cmd.OutOrStdout()
	if state == nil {
		fmt.Fprintln(out, "No saved upload to cancel.")
		return nil
	}
	us, err := graph.ResumeUploadSession(client, state.UploadURL, reader)
	if err != nil {
		return err
	}
	if err := us.Cancel(ctx); err != nil {
		return err
	}
	if err := a.Sessions.Delete(state.LocalPath, state.RemotePath); err != nil {
		return fmt.Errorf("deleting upload state: %w", err)
	}
	fmt.Fprintln(out, "Upload session cancelled.")
	return nil
}

func addUploadFlags(c *cobra.Command) {
	c.Flags().Int64("chunk-size", 0, "Chunk size in bytes, a multiple of 320 KiB (default from config)")
	c.Flags().String("conflict", string(graph.ConflictReplace), "What to do when the target exists: fail, replace or rename")
	c.Flags().Bool("cancel", false, "Cancel the saved upload session for this file")
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	addUploadFlags(uploadCmd)
}
