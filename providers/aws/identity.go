package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// Identity describes the instance the monitor runs on.
type Identity struct {
	InstanceID string
	Region     string
}

// NewIMDSClient creates a metadata client. IMDS needs no credentials
// or region; it only works from inside an instance.
func NewIMDSClient() *imds.Client {
	return imds.New(imds.Options{})
}

// FetchIdentity reads the instance identity document from IMDS.
func FetchIdentity(ctx context.Context, client IMDSAPI) (Identity, error) {
	output, err := client.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("get instance identity document: %w", err)
	}

	doc := output.InstanceIdentityDocument
	if doc.InstanceID == "" || doc.Region == "" {
		return Identity{}, errors.New("incomplete instance identity document")
	}

	return Identity{InstanceID: doc.InstanceID, Region: doc.Region}, nil
}
