// signal-client streams a replay script into a running fusiond over the gRPC
// ingest service, paced at the script's frame offsets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cockpit/fusion/internal/ingest"
	"cockpit/fusion/internal/logging"
	"cockpit/fusion/internal/replay"
)

var (
	addr    = flag.String("addr", "localhost:9090", "fusiond ingest addr")
	control = flag.String("control", "http://localhost:8080", "fusiond HTTP base URL for scene and user directives")
	device  = flag.String("device", "signal-client", "device id sent with the stream")
	token   = flag.String("token", "", "device token (default $FUSION_DEVICE_TOKEN)")
	level   = flag.String("log-level", "info", "log level")
	loop    = flag.Bool("loop", false, "restart the script when it ends")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: signal-client [flags] script.yaml")
		os.Exit(2)
	}
	log, _, err := logging.New(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log, flag.Arg(0)); err != nil {
		log.Error("signal client failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, path string) error {
	script, err := replay.Load(path)
	if err != nil {
		return err
	}
	tok := *token
	if tok == "" {
		tok = os.Getenv("FUSION_DEVICE_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := ingest.Dial(*addr)
	if err != nil {
		return err
	}
	defer c.Close()
	st, err := c.Open(ctx, *device, tok)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			ack, err := st.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("recv ack: %w", err)
			}
			if ack.Error != "" {
				log.Warn("frame rejected", zap.Int64("seq", ack.Seq), zap.String("error", ack.Error))
				continue
			}
			log.Debug("ack", zap.Int64("seq", ack.Seq), zap.String("scene", ack.Scene), zap.String("phase", ack.Phase))
		}
	})
	g.Go(func() error {
		defer st.CloseSend()
		var seq int64
		for {
			err := replay.Pace(gctx, script.Expand(time.Now()), func(it replay.Item) error {
				switch {
				case it.Scene != "":
					return post(gctx, "/scene", fmt.Sprintf(`{"scene":%q}`, it.Scene), tok)
				case it.User != "":
					return post(gctx, "/users/active", fmt.Sprintf(`{"user_id":%q}`, it.User), tok)
				case it.Frame != nil:
					seq++
					return st.Send(seq, *it.Frame)
				}
				return nil
			})
			if err != nil {
				return err
			}
			log.Info("script finished", zap.String("script", script.Name), zap.Int64("frames", seq))
			if !*loop {
				return nil
			}
		}
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// post applies a scene or user directive through the control API.
func post(ctx context.Context, path, body, tok string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(*control, "/")+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s: %s", path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
