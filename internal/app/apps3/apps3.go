package apps3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	transport "github.com/aws/smithy-go/endpoints"
)

// DefaultBucketName is the bucket the build process writes PDFs to
// when no other bucket is configured.
const DefaultBucketName = "brick"

// endpointResolver implements s3.EndpointResolverV2.
// It resolves path-style endpoints for S3-compatible storage like MinIO.
type endpointResolver struct {
	BaseURL *url.URL // required
}

func (r *endpointResolver) ResolveEndpoint(_ context.Context, params s3.EndpointParameters) (transport.Endpoint, error) {
	u := *r.BaseURL
	if params.Bucket != nil {
		u.Path += "/" + *params.Bucket
	}
	return transport.Endpoint{URI: u}, nil
}

// NewClient creates a client from a connection string
// in the format http://key:secret@s3:9000.
// For MinIO, the key and secret are the username and password.
func NewClient(connectionString string) (*s3.Client, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("apps3.NewClient: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apps3.NewClient: %q isn't an absolute URL", u.Redacted())
	}

	username := u.User.Username()
	password, _ := u.User.Password()
	u.User = nil

	client := s3.New(
		s3.Options{
			Credentials:        credentials.NewStaticCredentialsProvider(username, password, ""),
			EndpointResolverV2: &endpointResolver{BaseURL: u},
		},
	)
	return client, nil
}

// Setup creates bucket and waits for it to exist.
// It shouldn't be used with AWS as is because it doesn't specify the region.
func Setup(ctx context.Context, client *s3.Client, bucket string) error {
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &bucket,
	})
	if ownedErr := (*types.BucketAlreadyOwnedByYou)(nil); errors.As(err, &ownedErr) {
		// continue
	} else if err != nil {
		return fmt.Errorf("apps3.Setup: %w", err)
	}

	err = s3.NewBucketExistsWaiter(client).Wait(
		ctx,
		&s3.HeadBucketInput{Bucket: &bucket},
		time.Minute,
	)
	if err != nil {
		return fmt.Errorf("apps3.Setup: %w", err)
	}

	return nil
}
