package aws

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"

	"coremeter/internal/logging"
)

// NewSession creates a new AWS session with the specified profile and region
func NewSession(profile string, region string) (*session.Session, error) {
	cfg := aws.NewConfig().WithHTTPClient(&http.Client{Timeout: 60 * time.Second})
	if region != "" {
		cfg = cfg.WithRegion(region)
	}

	opts := session.Options{
		Config:            *cfg,
		Profile:           profile,
		SharedConfigState: session.SharedConfigEnable,
	}

	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return sess, nil
}

// RoleARN returns the full ARN for a role. Plain role names are resolved
// against the account of sess.
func RoleARN(sess *session.Session, role string) (string, error) {
	if strings.HasPrefix(role, "arn:") {
		return role, nil
	}

	identity, err := sts.New(sess).GetCallerIdentity(&sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", *identity.Account, role), nil
}

// AssumeRole returns a session using credentials of role. An empty role
// returns sess unchanged.
func AssumeRole(sess *session.Session, role string) (*session.Session, error) {
	if role == "" {
		return sess, nil
	}

	roleARN, err := RoleARN(sess, role)
	if err != nil {
		return nil, err
	}

	logging.Debug("Assuming role for S3 access", map[string]interface{}{
		"role_arn": roleARN,
	})

	creds := stscreds.NewCredentials(sess, roleARN, func(p *stscreds.AssumeRoleProvider) {
		p.RoleSessionName = fmt.Sprintf("coremeter-%d", time.Now().Unix())
	})
	assumed, err := session.NewSession(sess.Config.Copy().WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to assume role %s: %w", roleARN, err)
	}
	return assumed, nil
}

// SessionFor builds the session used for S3 access: profile, optional
// region and optional role.
func SessionFor(profile, region, role string) (*session.Session, error) {
	sess, err := NewSession(profile, region)
	if err != nil {
		return nil, err
	}
	return AssumeRole(sess, role)
}
