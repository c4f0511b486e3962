// Package aws implements the cloud provider side of uinu: instance
// tagging, stop and terminate actions, the stopped-instance listing,
// and the CloudWatch player-count metric.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/uinuhq/uinu/sweeper"
)

const playerCountMetric = "PlayerCount"

// Provider implements monitor.InstanceControl, monitor.MetricSink and
// sweeper.InstanceAPI against real AWS clients.
type Provider struct {
	ec2Client EC2API
	cwClient  CloudWatchAPI
	region    string
	namespace string
}

// New creates a provider for the region using the default credential chain.
func New(ctx context.Context, region, namespace string) (*Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Provider{
		ec2Client: ec2.NewFromConfig(cfg),
		cwClient:  cloudwatch.NewFromConfig(cfg),
		region:    region,
		namespace: namespace,
	}, nil
}

// Region returns the provider region.
func (p *Provider) Region() string {
	return p.region
}

// TagInstance attaches a single tag to the instance.
func (p *Provider) TagInstance(ctx context.Context, id, key, value string) error {
	_, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags: []ec2types.Tag{
			{Key: aws.String(key), Value: aws.String(value)},
		},
	})
	if err != nil {
		return fmt.Errorf("tag instance %s: %w", id, err)
	}
	return nil
}

// StopInstance stops the instance.
func (p *Provider) StopInstance(ctx context.Context, id string) error {
	_, err := p.ec2Client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return fmt.Errorf("stop instance %s: %w", id, err)
	}
	return nil
}

// TerminateInstance irreversibly destroys the instance.
func (p *Provider) TerminateInstance(ctx context.Context, id string) error {
	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return fmt.Errorf("terminate instance %s: %w", id, err)
	}
	return nil
}

// ListStoppedTagged returns stopped instances carrying tagKey. Both
// conditions are API-level filters: instances stopped by hand never
// reach the sweeper.
func (p *Provider) ListStoppedTagged(ctx context.Context, tagKey string) ([]sweeper.StoppedInstance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("instance-state-name"), Values: []string{"stopped"}},
			{Name: aws.String("tag-key"), Values: []string{tagKey}},
		},
	}

	var instances []sweeper.StoppedInstance
	for {
		output, err := p.ec2Client.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("describe stopped instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				instances = append(instances, sweeper.StoppedInstance{
					ID:       aws.ToString(instance.InstanceId),
					StopTime: tagValue(instance.Tags, tagKey),
				})
			}
		}

		if output.NextToken == nil {
			break
		}
		input.NextToken = output.NextToken
	}

	return instances, nil
}

// PublishPlayerCount pushes the sampled player count to CloudWatch,
// dimensioned by instance id.
func (p *Provider) PublishPlayerCount(ctx context.Context, instanceID string, players int) error {
	_, err := p.cwClient.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(playerCountMetric),
				Value:      aws.Float64(float64(players)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("InstanceId"), Value: aws.String(instanceID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", playerCountMetric, err)
	}
	return nil
}

func tagValue(tags []ec2types.Tag, key string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == key {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
