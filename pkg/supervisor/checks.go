package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"agentceli/warden/pkg/artifact"
	"agentceli/warden/pkg/process"
)

// Names of the supervisor's health checks.
const (
	CheckArtifact = "artifact"
	CheckEndpoint = "endpoint"
	CheckProcess  = "process"
)

// maxBodySize bounds how much of the endpoint response is read.
const maxBodySize = 4 << 20

// ErrNoProcess is returned by the process check when the collector is not running.
var ErrNoProcess = errors.New("no collector process running")

// artifactCheck reports whether the collector's output file and its embedded
// timestamp are within maxAge.
func artifactCheck(path, field string, maxAge time.Duration, now func() time.Time) func(context.Context) error {
	return func(ctx context.Context) error {
		f, err := artifact.CheckFreshness(path, field, maxAge, now())
		if err != nil {
			return err
		}
		if !f.Fresh {
			return fmt.Errorf("%s: %s", path, f.Reason)
		}
		return nil
	}
}

// endpointCheck reports whether the collector's HTTP endpoint answers 200 with
// a JSON body whose timestamp, when present, is within maxAge.
func endpointCheck(client *http.Client, url, field string, maxAge time.Duration, now func() time.Time) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if !gjson.ValidBytes(body) {
			return fmt.Errorf("GET %s: %w", url, artifact.ErrInvalidJSON)
		}

		ts, err := artifact.Timestamp(body, field)
		switch {
		case errors.Is(err, artifact.ErrNoTimestamp):
			return nil
		case err != nil:
			return err
		}
		if age := now().Sub(ts); age > maxAge {
			return fmt.Errorf("endpoint data is %s old (max %s)", age.Round(time.Second), maxAge)
		}
		return nil
	}
}

// processCheck reports whether at least one collector process is running.
func processCheck(registry process.Registry) func(context.Context) error {
	return func(ctx context.Context) error {
		procs, err := registry.List(ctx)
		if err != nil {
			return err
		}
		if len(procs) == 0 {
			return ErrNoProcess
		}
		return nil
	}
}
