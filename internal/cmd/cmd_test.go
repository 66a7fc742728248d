package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - merchant_domain: trailoutfitters.com
    return_window_days: 30
  - merchant_domain: northwindbooks.com
    return_window_days: 14
`), 0o644))

	rules, err := readRuleFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "trailoutfitters.com", rules[0].MerchantDomain)
	assert.Equal(t, 30, rules[0].ReturnWindowDays)
	assert.Equal(t, 14, rules[1].ReturnWindowDays)
}

func TestReadRuleFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: [unclosed"), 0o644))

	_, err := readRuleFile(path)
	assert.Error(t, err)

	_, err = readRuleFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPurchaseMessages(t *testing.T) {
	placed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	msgs := purchaseMessages(sampleMerchants[0], 0, placed)
	require.Len(t, msgs, 3)

	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].ReceivedAt.After(msgs[i-1].ReceivedAt), "messages must be chronological")
		assert.Equal(t, msgs[0].From, msgs[i].From)
		assert.NotEqual(t, msgs[0].ID, msgs[i].ID)
	}
	assert.Contains(t, msgs[0].Body, "Order #SQ10231")
	assert.Contains(t, msgs[1].Body, "1Z999AA10123456784")
	assert.Contains(t, msgs[1].Body, "45 days")
	// the first merchant only names its order number on the confirmation
	assert.NotContains(t, msgs[2].Body, "SQ10231")
}

func TestParseDateFlag(t *testing.T) {
	d, err := parseDateFlag("after", "")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	d, err = parseDateFlag("after", "2024-05-20")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDateFlag("after", "20/05/2024")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Blue Hik…", truncate("Blue Hiking Boots", 9))
}
