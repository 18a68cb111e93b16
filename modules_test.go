package listenkit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportConfig(t *testing.T) {
	t.Run("applies modules in priority order", func(t *testing.T) {
		var applied []string
		record := func(name string, priority int) ConfigModule {
			return NewConfigModule(name, priority, func(c *Client) error {
				applied = append(applied, name)
				return nil
			})
		}

		err := ImportConfig(&Client{},
			record("metrics", 20),
			record("core", 0),
			record("listeners", 10),
		)

		assert.NoError(t, err)
		assert.Equal(t, []string{"core", "listeners", "metrics"}, applied)
	})

	t.Run("equal priorities keep declaration order", func(t *testing.T) {
		var applied []string
		record := func(name string) ConfigModule {
			return NewConfigModule(name, 5, func(c *Client) error {
				applied = append(applied, name)
				return nil
			})
		}

		err := ImportConfig(&Client{}, record("a"), record("b"), record("c"))

		assert.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, applied)
	})

	t.Run("imports duplicate names once", func(t *testing.T) {
		count := 0
		module := func(priority int) ConfigModule {
			return NewConfigModule("core", priority, func(c *Client) error {
				count++
				return nil
			})
		}

		err := ImportConfig(&Client{}, module(1), module(2))

		assert.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("aborts on the first failing module", func(t *testing.T) {
		applied := false
		failing := NewConfigModule("broken", 0, func(c *Client) error {
			return errors.New("boom")
		})
		later := NewConfigModule("later", 1, func(c *Client) error {
			applied = true
			return nil
		})

		err := ImportConfig(&Client{}, failing, later)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), `config module "broken"`)
		assert.False(t, applied)
	})

	t.Run("fails with nil client", func(t *testing.T) {
		err := ImportConfig(nil, NewConfigModule("core", 0, func(c *Client) error {
			return nil
		}))

		assert.ErrorIs(t, err, errNilClient)
	})

	t.Run("no modules is a no-op", func(t *testing.T) {
		assert.NoError(t, ImportConfig(&Client{}))
	})
}
