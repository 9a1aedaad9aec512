package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/mail"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/ta-triage/internal/config"
	"github.com/mikey/ta-triage/internal/core"
	"github.com/mikey/ta-triage/internal/di"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run classifies a single email and prints the routing decision
func run(
	logger *zap.Logger,
	cfg *config.Config,
	flags *di.CLIFlags,
	classifier core.Classifier,
	policy core.PolicyConfig,
) error {
	defer logger.Sync()

	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", flags.InputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := msg.Header.Get("From")
	subject := msg.Header.Get("Subject")

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}
	body := string(bodyBytes)

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(body))
	fmt.Printf("\n")

	fmt.Printf("=== Classification ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("llm.provider"))
	fmt.Printf("Grade-inquiry threshold: %.2f\n", policy.GradeConfidenceThreshold)

	startTime := time.Now()
	classification, err := classifier.Classify(context.Background(), subject, body)
	if err != nil {
		logger.Fatal("Failed to classify email", zap.Error(err))
	}
	duration := time.Since(startTime)

	// An unconstrained quota state: the CLI reports the pure policy
	// decision, not the daemon's live counter.
	decision := core.Decide(classification.Intent, classification.Confidence,
		core.QuotaState{Count: 0, Cap: 1}, policy)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Intent: %s\n", classification.Intent)
	fmt.Printf("Confidence: %.4f\n", classification.Confidence)
	fmt.Printf("Routing decision: %s\n", decision)
	fmt.Printf("Processing time: %v\n", duration)

	// Close any resources that need closing
	if closer, ok := classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM provider", zap.Error(err))
		}
	}
	return nil
}
