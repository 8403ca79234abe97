package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceGroupFromID(t *testing.T) {
	tests := []struct {
		name       string
		resourceID string
		want       string
		wantErr    bool
	}{
		{
			name:       "virtual machine",
			resourceID: "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg-prod/providers/Microsoft.Compute/virtualMachines/vm01",
			want:       "rg-prod",
		},
		{
			name:       "arc machine",
			resourceID: "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg-arc/providers/Microsoft.HybridCompute/machines/server01",
			want:       "rg-arc",
		},
		{
			name:       "lowercase resourcegroups segment",
			resourceID: "/subscriptions/00000000-0000-0000-0000-000000000001/resourcegroups/RG-Mixed/providers/Microsoft.Compute/virtualMachineScaleSets/vmss1",
			want:       "RG-Mixed",
		},
		{
			name:       "resource group itself",
			resourceID: "/subscriptions/00000000-0000-0000-0000-000000000001/resourceGroups/rg-only",
			want:       "rg-only",
		},
		{
			name:       "subscription scope only",
			resourceID: "/subscriptions/00000000-0000-0000-0000-000000000001",
			wantErr:    true,
		},
		{
			name:       "empty",
			resourceID: "",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResourceGroupFromID(tt.resourceID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResourceNameFromID(t *testing.T) {
	assert.Equal(t, "vm01", ResourceNameFromID("/subscriptions/s/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm01"))
	assert.Equal(t, "server01", ResourceNameFromID("/subscriptions/s/resourceGroups/rg/providers/Microsoft.HybridCompute/machines/server01/"))
	assert.Equal(t, "", ResourceNameFromID(""))
}

func TestValidSubscriptionID(t *testing.T) {
	assert.True(t, ValidSubscriptionID("12345678-1234-1234-1234-123456789abc"))
	assert.True(t, ValidSubscriptionID("ABCDEF01-ABCD-ABCD-ABCD-ABCDEF012345"))
	assert.False(t, ValidSubscriptionID("not-a-guid"))
	assert.False(t, ValidSubscriptionID("12345678-1234-1234-1234-123456789abc/extra"))
	assert.False(t, ValidSubscriptionID(""))
}

func TestNewCredentialUnknownMode(t *testing.T) {
	_, err := NewCredential("certificate", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown auth mode")
}
