package keymgmt

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"
)

type keyState struct {
	metadata    *types.KeyMetadata
	describeErr error
	rotation    bool
	rotationErr error
}

type fakeKeyAPI struct {
	keys    map[string]keyState
	order   []string
	listErr error
}

func (f *fakeKeyAPI) ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := &kms.ListKeysOutput{}
	for _, id := range f.order {
		out.Keys = append(out.Keys, types.KeyListEntry{KeyId: aws.String(id)})
	}
	return out, nil
}

func (f *fakeKeyAPI) DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error) {
	state := f.keys[aws.ToString(params.KeyId)]
	if state.describeErr != nil {
		return nil, state.describeErr
	}
	return &kms.DescribeKeyOutput{KeyMetadata: state.metadata}, nil
}

func (f *fakeKeyAPI) GetKeyRotationStatus(ctx context.Context, params *kms.GetKeyRotationStatusInput, optFns ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error) {
	state := f.keys[aws.ToString(params.KeyId)]
	if state.rotationErr != nil {
		return nil, state.rotationErr
	}
	return &kms.GetKeyRotationStatusOutput{KeyRotationEnabled: state.rotation}, nil
}

func TestListKeysSkipsAWSManaged(t *testing.T) {
	api := &fakeKeyAPI{
		order: []string{"key-cust", "key-aws"},
		keys: map[string]keyState{
			"key-cust": {
				metadata: &types.KeyMetadata{
					KeyId:      aws.String("key-cust"),
					Arn:        aws.String("arn:aws:kms:us-east-1:123:key/key-cust"),
					KeyManager: types.KeyManagerTypeCustomer,
					KeyState:   types.KeyStateEnabled,
					KeyUsage:   types.KeyUsageTypeEncryptDecrypt,
					Origin:     types.OriginTypeAwsKms,
				},
				rotation: true,
			},
			"key-aws": {
				metadata: &types.KeyMetadata{
					KeyId:      aws.String("key-aws"),
					KeyManager: types.KeyManagerTypeAws,
				},
			},
		},
	}
	svc := NewService(api, zap.NewNop())

	keys, err := svc.ListKeys(context.Background())
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 customer key, got %d", len(keys))
	}
	key := keys[0]
	if key.KeyID != "key-cust" || !key.RotationEnabled {
		t.Fatalf("unexpected key: %+v", key)
	}
	if key.KeyState != "Enabled" || key.KeyUsage != "ENCRYPT_DECRYPT" {
		t.Errorf("unexpected key attributes: %+v", key)
	}
}

func TestListKeysDescribeFailureSkips(t *testing.T) {
	api := &fakeKeyAPI{
		order: []string{"key-broken", "key-good"},
		keys: map[string]keyState{
			"key-broken": {describeErr: errors.New("access denied")},
			"key-good": {
				metadata: &types.KeyMetadata{
					KeyId:      aws.String("key-good"),
					KeyManager: types.KeyManagerTypeCustomer,
				},
			},
		},
	}
	svc := NewService(api, zap.NewNop())

	keys, err := svc.ListKeys(context.Background())
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 1 || keys[0].KeyID != "key-good" {
		t.Fatalf("expected only the describable key, got %+v", keys)
	}
}

func TestListKeysRotationFailureReadsFalse(t *testing.T) {
	api := &fakeKeyAPI{
		order: []string{"key-norot"},
		keys: map[string]keyState{
			"key-norot": {
				metadata: &types.KeyMetadata{
					KeyId:      aws.String("key-norot"),
					KeyManager: types.KeyManagerTypeCustomer,
				},
				rotationErr: errors.New("unsupported key type"),
			},
		},
	}
	svc := NewService(api, zap.NewNop())

	keys, err := svc.ListKeys(context.Background())
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 1 || keys[0].RotationEnabled {
		t.Fatalf("rotation lookup failure should read false, got %+v", keys)
	}
}

func TestListKeysError(t *testing.T) {
	api := &fakeKeyAPI{listErr: errors.New("throttled")}
	svc := NewService(api, zap.NewNop())

	if _, err := svc.ListKeys(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}
