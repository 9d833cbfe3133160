package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/charmbracelet/log"

	"github.com/cruxstack/email-verifier-go/internal/config"
	"github.com/cruxstack/email-verifier-go/internal/logging"
	"github.com/cruxstack/email-verifier-go/internal/service"
)

var (
	cfg *config.Config
	svc *service.Service
)

func Handler(ctx context.Context, req service.Request) (*service.Response, error) {
	if cfg.DebugMode {
		reqJson, err := json.Marshal(req)
		if err != nil {
			log.Error("issue marshalling request", "error", err)
		}
		log.Debug("received request", "request", string(reqJson))
	}

	resp, err := svc.Verify(ctx, &req)
	if err != nil {
		// lambda drops the payload of a failed invocation, so the records
		// completed before the abort only survive in the log
		if resp != nil && len(resp.Results) > 0 {
			results, merr := json.Marshal(resp.Results)
			if merr != nil {
				log.Error("issue marshalling partial results", "error", merr)
			}
			log.Error("batch aborted", "batch_id", resp.BatchID, "completed", len(resp.Results), "results", string(results))
		}
		log.Error("failed to verify batch", "error", err)
		return nil, err
	}

	return resp, nil
}

func main() {
	var err error
	cfg, err = config.New()
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	logging.Setup(os.Stderr, cfg.AppLogLevel, true)

	svc, err = service.NewService(context.Background(), cfg)
	if err != nil {
		log.Fatal("failed to init service", "error", err)
	}

	lambda.Start(Handler)
}
