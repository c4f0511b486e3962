package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEC2 struct {
	describeInput  *ec2.DescribeInstancesInput
	describePages  []*ec2.DescribeInstancesOutput
	describeCalls  int
	createTags     *ec2.CreateTagsInput
	stopInput      *ec2.StopInstancesInput
	terminateInput *ec2.TerminateInstancesInput
	err            error
}

func (m *mockEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	m.describeInput = params
	if m.err != nil {
		return nil, m.err
	}
	page := m.describePages[m.describeCalls]
	m.describeCalls++
	return page, nil
}

func (m *mockEC2) CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	m.createTags = params
	return &ec2.CreateTagsOutput{}, m.err
}

func (m *mockEC2) StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	m.stopInput = params
	return &ec2.StopInstancesOutput{}, m.err
}

func (m *mockEC2) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	m.terminateInput = params
	return &ec2.TerminateInstancesOutput{}, m.err
}

type mockCloudWatch struct {
	input *cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.input = params
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func instance(id string, tags map[string]string) ec2types.Instance {
	inst := ec2types.Instance{InstanceId: aws.String(id)}
	for k, v := range tags {
		inst.Tags = append(inst.Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return inst
}

func TestTagInstance(t *testing.T) {
	client := &mockEC2{}
	p := &Provider{ec2Client: client}

	err := p.TagInstance(context.Background(), "i-abc", "StopTime", "2026-08-01T12:00:00Z")
	require.NoError(t, err)

	require.NotNil(t, client.createTags)
	assert.Equal(t, []string{"i-abc"}, client.createTags.Resources)
	require.Len(t, client.createTags.Tags, 1)
	assert.Equal(t, "StopTime", aws.ToString(client.createTags.Tags[0].Key))
	assert.Equal(t, "2026-08-01T12:00:00Z", aws.ToString(client.createTags.Tags[0].Value))
}

func TestStopAndTerminate(t *testing.T) {
	client := &mockEC2{}
	p := &Provider{ec2Client: client}

	require.NoError(t, p.StopInstance(context.Background(), "i-abc"))
	assert.Equal(t, []string{"i-abc"}, client.stopInput.InstanceIds)

	require.NoError(t, p.TerminateInstance(context.Background(), "i-def"))
	assert.Equal(t, []string{"i-def"}, client.terminateInput.InstanceIds)
}

func TestStopInstance_Error(t *testing.T) {
	client := &mockEC2{err: errors.New("throttled")}
	p := &Provider{ec2Client: client}

	err := p.StopInstance(context.Background(), "i-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "i-abc")
}

func TestListStoppedTagged_Filters(t *testing.T) {
	client := &mockEC2{describePages: []*ec2.DescribeInstancesOutput{
		{Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
			instance("i-one", map[string]string{"StopTime": "2026-08-01T12:00:00Z", "Name": "mc"}),
		}}}},
	}}
	p := &Provider{ec2Client: client}

	instances, err := p.ListStoppedTagged(context.Background(), "StopTime")
	require.NoError(t, err)

	require.Len(t, instances, 1)
	assert.Equal(t, "i-one", instances[0].ID)
	assert.Equal(t, "2026-08-01T12:00:00Z", instances[0].StopTime)

	// Both conditions must be API-level filters.
	require.Len(t, client.describeInput.Filters, 2)
	byName := map[string][]string{}
	for _, f := range client.describeInput.Filters {
		byName[aws.ToString(f.Name)] = f.Values
	}
	assert.Equal(t, []string{"stopped"}, byName["instance-state-name"])
	assert.Equal(t, []string{"StopTime"}, byName["tag-key"])
}

func TestListStoppedTagged_Pagination(t *testing.T) {
	client := &mockEC2{describePages: []*ec2.DescribeInstancesOutput{
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
				instance("i-one", map[string]string{"StopTime": "2026-08-01T12:00:00Z"}),
			}}},
			NextToken: aws.String("page2"),
		},
		{
			Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{
				instance("i-two", map[string]string{"StopTime": "2026-08-02T12:00:00Z"}),
			}}},
		},
	}}
	p := &Provider{ec2Client: client}

	instances, err := p.ListStoppedTagged(context.Background(), "StopTime")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
	assert.Equal(t, 2, client.describeCalls)
}

func TestPublishPlayerCount(t *testing.T) {
	client := &mockCloudWatch{}
	p := &Provider{cwClient: client, namespace: "Minecraft"}

	err := p.PublishPlayerCount(context.Background(), "i-abc", 4)
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "Minecraft", aws.ToString(client.input.Namespace))
	require.Len(t, client.input.MetricData, 1)
	datum := client.input.MetricData[0]
	assert.Equal(t, "PlayerCount", aws.ToString(datum.MetricName))
	assert.Equal(t, 4.0, aws.ToFloat64(datum.Value))
	require.Len(t, datum.Dimensions, 1)
	assert.Equal(t, "i-abc", aws.ToString(datum.Dimensions[0].Value))
}

type mockIMDS struct {
	doc imds.InstanceIdentityDocument
	err error
}

func (m *mockIMDS) GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &imds.GetInstanceIdentityDocumentOutput{InstanceIdentityDocument: m.doc}, nil
}

func TestFetchIdentity(t *testing.T) {
	client := &mockIMDS{doc: imds.InstanceIdentityDocument{
		InstanceID: "i-abc",
		Region:     "eu-west-1",
	}}

	identity, err := FetchIdentity(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "i-abc", identity.InstanceID)
	assert.Equal(t, "eu-west-1", identity.Region)
}

func TestFetchIdentity_Incomplete(t *testing.T) {
	client := &mockIMDS{doc: imds.InstanceIdentityDocument{InstanceID: "i-abc"}}

	_, err := FetchIdentity(context.Background(), client)
	require.Error(t, err)
}

func TestFetchIdentity_Unreachable(t *testing.T) {
	client := &mockIMDS{err: errors.New("not on ec2")}

	_, err := FetchIdentity(context.Background(), client)
	require.Error(t, err)
}
