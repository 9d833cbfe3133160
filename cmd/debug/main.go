package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cruxstack/email-verifier-go/internal/config"
	"github.com/cruxstack/email-verifier-go/internal/logging"
	"github.com/cruxstack/email-verifier-go/internal/secrets"
	"github.com/cruxstack/email-verifier-go/internal/service"
)

var (
	dataPath   string
	policyPath string
	offline    bool
)

func init() {
	flag.StringVar(&dataPath, "data", "", "path to JSON or YAML file with test requests")
	flag.StringVar(&policyPath, "policy", "", "override path to verdict policy file")
	flag.BoolVar(&offline, "offline", false, "use the offline verifier instead of the remote provider")
	flag.Parse()
}

func NewDebugConfig() (*config.Config, error) {
	envpath := filepath.Join("..", "..", ".env")
	if _, err := os.Stat(envpath); err == nil {
		_ = godotenv.Load(envpath)
	}

	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	cfg.DebugMode = true

	if cfg.AppKmsKeyId == "" {
		cfg.AppKmsKeyId = secrets.MockedKeyID
	}

	if offline || (cfg.QuickEmailApiKey == "" && cfg.QuickEmailApiKeyCipher == "") {
		cfg.AppVerifierProvider = config.ProviderOffline
	}

	if cfg.AppVerdictPolicyPath == "" {
		cfg.AppVerdictPolicyPath = filepath.Join("..", "..", "fixtures", "verdict-policy.rego")
	}
	if policyPath != "" {
		cfg.AppVerdictPolicyPath = policyPath
	}

	if cfg.DebugDataPath == "" {
		cfg.DebugDataPath = filepath.Join("..", "..", "fixtures", "debug-data.json")
	}
	if dataPath != "" {
		cfg.DebugDataPath = dataPath
	}

	return cfg, nil
}

func loadRequests(path string) ([]service.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	requests := []service.Request{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &requests)
	default:
		err = json.Unmarshal(data, &requests)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return requests, nil
}

func main() {
	cfg, err := NewDebugConfig()
	if err != nil {
		log.Fatal("failed to debug load config", "error", err)
	}
	logging.Setup(os.Stderr, cfg.AppLogLevel, false)

	ctx := context.Background()
	svc, err := service.NewService(ctx, cfg)
	if err != nil {
		log.Fatal("failed to init service", "error", err)
	}
	defer svc.Close()

	requests, err := loadRequests(cfg.DebugDataPath)
	if err != nil {
		log.Fatal("failed to read data file", "path", cfg.DebugDataPath, "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for i, req := range requests {
		resp, err := svc.Verify(ctx, &req)
		if err != nil {
			log.Error("debug iteration failed", "index", i, "error", err)
			os.Exit(1)
		}
		if err := enc.Encode(resp); err != nil {
			log.Error("failed to print response", "error", err)
		}
		log.Info("debug iteration passed", "index", i, "results", len(resp.Results))
	}

	log.Info("debug run passed")
}
