package keysink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/google/uuid"
)

// ErrSecretsManager wraps AWS Secrets Manager failures.
var ErrSecretsManager = errors.New("secrets manager update failed")

// SecretsManagerAPI is the subset of the AWS client used here. It allows a
// fake in tests.
type SecretsManagerAPI interface {
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// SecretsManager stores each new current secret as a new version of one AWS
// secret. AWS moves the AWSCURRENT stage to the new version and keeps the
// previous one as AWSPREVIOUS.
type SecretsManager struct {
	client   SecretsManagerAPI
	secretID string
}

func NewSecretsManager(client SecretsManagerAPI, secretID string) *SecretsManager {
	return &SecretsManager{client: client, secretID: secretID}
}

type storedSecret struct {
	Secret        string    `json:"secret"`
	Fingerprint   string    `json:"fingerprint"`
	RotatedAt     time.Time `json:"rotated_at"`
	RotationCount uint64    `json:"rotation_count"`
	Reason        string    `json:"reason"`
	Emergency     bool      `json:"emergency"`
}

func (s *SecretsManager) Notify(ctx context.Context, n Notice) error {
	if s.secretID == "" {
		return fmt.Errorf("%w: secret id not configured", ErrSecretsManager)
	}
	if n.Secret == "" {
		return fmt.Errorf("%w: notice carries no secret", ErrSecretsManager)
	}

	body, err := json.Marshal(storedSecret{
		Secret:        n.Secret,
		Fingerprint:   n.Fingerprint,
		RotatedAt:     n.RotatedAt.UTC(),
		RotationCount: n.RotationCount,
		Reason:        n.Reason,
		Emergency:     n.Emergency,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecretsManager, err)
	}

	_, err = s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           aws.String(s.secretID),
		SecretString:       aws.String(string(body)),
		ClientRequestToken: aws.String(uuid.NewString()),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSecretsManager, err)
	}
	return nil
}
