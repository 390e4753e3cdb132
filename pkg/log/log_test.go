package log

import (
	"bytes"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestLogr(t *testing.T) {
	t.Run("info level drops debug", func(t *testing.T) {
		var buf bytes.Buffer
		log := Logr(newLogger(&buf, false))
		log.Info("Topology submitted", "topology", "acme_dc1_dev_bro_a")
		log.V(1).Info("Stage settings")

		out := buf.String()
		assert.Contains(t, out, `"message":"Topology submitted"`)
		assert.Contains(t, out, `"topology":"acme_dc1_dev_bro_a"`)
		assert.NotContains(t, out, "Stage settings")
	})

	t.Run("debug level keeps debug", func(t *testing.T) {
		var buf bytes.Buffer
		log := Logr(newLogger(&buf, true))
		log.V(1).Info("Stage settings")
		assert.Contains(t, buf.String(), "Stage settings")
	})
}
