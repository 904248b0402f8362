package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/internal/infrastructure/config"
)

// Publisher is the subset of the SNS client the notifier uses
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	ListTopics(ctx context.Context, params *sns.ListTopicsInput, optFns ...func(*sns.Options)) (*sns.ListTopicsOutput, error)
}

// SNSNotifier publishes finished drain runs to an SNS topic
type SNSNotifier struct {
	client   Publisher
	topicARN string
	outcomes map[entities.DrainOutcome]struct{}
	logger   *zap.Logger
}

// NewSNSNotifier loads the default AWS credential chain for the configured region
func NewSNSNotifier(ctx context.Context, cfg config.NotifyConfig, logger *zap.Logger) (*SNSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(awsCfg), cfg, logger), nil
}

func NewSNSNotifierWithClient(client Publisher, cfg config.NotifyConfig, logger *zap.Logger) *SNSNotifier {
	outcomes := make(map[entities.DrainOutcome]struct{}, len(cfg.Outcomes))
	for _, o := range cfg.Outcomes {
		outcomes[entities.DrainOutcome(o)] = struct{}{}
	}
	return &SNSNotifier{
		client:   client,
		topicARN: cfg.TopicARN,
		outcomes: outcomes,
		logger:   logger,
	}
}

// drainAlert is the message body subscribers receive
type drainAlert struct {
	RunID         string `json:"run_id"`
	Source        string `json:"source"`
	Trigger       string `json:"trigger"`
	Outcome       string `json:"outcome"`
	NativeBalance string `json:"native_balance"`
	EstimatedFee  string `json:"estimated_fee"`
	Remainder     string `json:"remainder"`
	TokenMessages int    `json:"token_messages"`
	TxHash        string `json:"tx_hash,omitempty"`
	Error         string `json:"error,omitempty"`
	FinishedAt    string `json:"finished_at"`
}

// Record publishes the run when its outcome is one operators asked to hear about
func (n *SNSNotifier) Record(ctx context.Context, run *entities.DrainRun) error {
	if _, ok := n.outcomes[run.Outcome]; !ok {
		return nil
	}

	alert := drainAlert{
		RunID:         run.ID.String(),
		Source:        run.SourceAddress,
		Trigger:       string(run.Trigger),
		Outcome:       string(run.Outcome),
		NativeBalance: run.NativeBalance.String(),
		EstimatedFee:  run.EstimatedFee.String(),
		Remainder:     run.Remainder.String(),
		TokenMessages: run.TokenMessages,
		FinishedAt:    run.FinishedAt.UTC().Format(time.RFC3339),
	}
	if run.TxHash != nil {
		alert.TxHash = *run.TxHash
	}
	if run.ErrorMessage != nil {
		alert.Error = *run.ErrorMessage
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal drain alert: %w", err)
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(fmt.Sprintf("Drain %s for %s", run.Outcome, entities.ShortAddress(run.SourceAddress))),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(string(run.Outcome))},
		},
	})
	if err != nil {
		n.logger.Error("Failed to publish drain alert", zap.Error(err), zap.String("run_id", alert.RunID))
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	n.logger.Debug("Drain alert published", zap.String("run_id", alert.RunID), zap.String("outcome", alert.Outcome))
	return nil
}

// HealthCheck verifies SNS connectivity
func (n *SNSNotifier) HealthCheck(ctx context.Context) error {
	_, err := n.client.ListTopics(ctx, &sns.ListTopicsInput{})
	return err
}
