package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTables_AreIdempotentAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, tbl := range Tables {
		assert.False(t, seen[tbl.Name], "duplicate table %s", tbl.Name)
		seen[tbl.Name] = true
		assert.Contains(t, tbl.CQL, "CREATE TABLE IF NOT EXISTS "+tbl.Name+" ")
	}
}

func TestTables_CountersLiveAlone(t *testing.T) {
	for _, tbl := range Tables {
		if !strings.Contains(tbl.CQL, " counter") {
			continue
		}
		assert.Equal(t, "conversation_counters", tbl.Name)
	}
}

func TestNewCluster_UsesRetryPolicy(t *testing.T) {
	c := NewCluster([]string{"127.0.0.1:9042"}, "chat")
	assert.Equal(t, "chat", c.Keyspace)
	assert.NotNil(t, c.RetryPolicy)
}
