package logging

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCollector_AddAndGet(t *testing.T) {
	c := NewLogCollector(0)
	c.AddLog("a", LogEntry{Message: "one"})
	c.AddLog("a", LogEntry{Message: "two"})
	c.AddLog("b", LogEntry{Message: "three"})

	logs := c.GetLogs("a")
	require.Len(t, logs, 2)
	assert.Equal(t, "one", logs[0].Message)
	assert.Nil(t, c.GetLogs("missing"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}

func TestLogCollector_ReturnsCopies(t *testing.T) {
	c := NewLogCollector(0)
	c.AddLog("a", LogEntry{Message: "one"})

	logs := c.GetLogs("a")
	logs[0].Message = "changed"
	all := c.GetAllLogs()
	all["a"][0].Message = "changed"

	assert.Equal(t, "one", c.GetLogs("a")[0].Message)
}

func TestLogCollector_Bounded(t *testing.T) {
	c := NewLogCollector(3)
	for i := range 5 {
		c.AddLog("a", LogEntry{Message: fmt.Sprint(i)})
	}

	logs := c.GetLogs("a")
	require.Len(t, logs, 3)
	assert.Equal(t, "2", logs[0].Message, "oldest entries are dropped")
	assert.Equal(t, "4", logs[2].Message)
}

func TestLogCollector_DrainAndClear(t *testing.T) {
	c := NewLogCollector(0)
	c.AddLog("a", LogEntry{Message: "one"})

	drained := c.Drain()
	assert.Len(t, drained["a"], 1)
	assert.Empty(t, c.Keys())

	c.AddLog("b", LogEntry{Message: "two"})
	c.Clear()
	assert.Empty(t, c.GetAllLogs())
}

func TestLogCollector_Concurrent(t *testing.T) {
	c := NewLogCollector(0)
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("component-%d", i%3)
			for range 10 {
				c.AddLog(key, LogEntry{Message: "x"})
				c.GetLogs(key)
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, logs := range c.GetAllLogs() {
		total += len(logs)
	}
	assert.Equal(t, 100, total)
}
