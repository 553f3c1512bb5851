/*
Package cli provides command-line interface utilities for warden.

The cli package includes output formatters, a control API client, and common
CLI helpers used by the warden command.

Output Formatting:

Commands print either human readable text or JSON, selected by --output:

	format, err := cli.ParseFormat(outputFlag)
	formatter := cli.NewFormatter(format, renderStatus)
	if err := formatter.FormatTo(os.Stdout, status); err != nil {
		return err
	}

Control API:

Operator commands talk to a running warden over HTTP:

	client := cli.NewClient("127.0.0.1:9090", 0)
	var st server.StatusResponse
	err := client.Get(ctx, "/v1/status", &st)

Non-2xx answers are returned as *APIError carrying the error envelope.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
