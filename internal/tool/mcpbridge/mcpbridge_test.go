package mcpbridge

import (
	"context"
	"testing"
)

func TestConnectValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := New(nil)
	defer b.Close()

	t.Run("empty name", func(t *testing.T) {
		err := b.Connect(ctx, ServerConfig{Transport: TransportStdio, Command: "/bin/true"})
		if err == nil {
			t.Fatal("Connect: empty name accepted")
		}
	})

	t.Run("unknown transport", func(t *testing.T) {
		err := b.Connect(ctx, ServerConfig{Name: "x", Transport: "carrier-pigeon"})
		if err == nil {
			t.Fatal("Connect: unknown transport accepted")
		}
	})

	t.Run("stdio without command", func(t *testing.T) {
		err := b.Connect(ctx, ServerConfig{Name: "x", Transport: TransportStdio})
		if err == nil {
			t.Fatal("Connect: stdio without command accepted")
		}
	})

	t.Run("http without url", func(t *testing.T) {
		err := b.Connect(ctx, ServerConfig{Name: "x", Transport: TransportStreamableHTTP})
		if err == nil {
			t.Fatal("Connect: streamable-http without URL accepted")
		}
	})
}

func TestToolsWithNoServers(t *testing.T) {
	t.Parallel()

	b := New(nil)
	defer b.Close()

	tools, err := b.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	if len(tools) != 0 {
		t.Fatalf("Tools: got %d tools from zero servers", len(tools))
	}
}

func TestSchemaToMap(t *testing.T) {
	t.Parallel()

	t.Run("nil schema defaults to object", func(t *testing.T) {
		t.Parallel()
		m := schemaToMap(nil)
		if m["type"] != "object" {
			t.Fatalf("schemaToMap: %v", m)
		}
	})

	t.Run("map passes through", func(t *testing.T) {
		t.Parallel()
		in := map[string]any{"type": "object", "properties": map[string]any{}}
		m := schemaToMap(in)
		if m["type"] != "object" {
			t.Fatalf("schemaToMap: %v", m)
		}
	})

	t.Run("struct is marshalled", func(t *testing.T) {
		t.Parallel()
		type schema struct {
			Type string `json:"type"`
		}
		m := schemaToMap(schema{Type: "object"})
		if m["type"] != "object" {
			t.Fatalf("schemaToMap: %v", m)
		}
	})
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	exe, args := splitCommand("/usr/bin/server --config /etc/x.json")
	if exe != "/usr/bin/server" || len(args) != 2 {
		t.Fatalf("splitCommand: %q %v", exe, args)
	}
	if exe, args := splitCommand(""); exe != "" || args != nil {
		t.Fatalf("splitCommand: %q %v", exe, args)
	}
}

func TestMergedEnv(t *testing.T) {
	t.Setenv("MCPBRIDGE_TEST_INHERITED", "yes")

	env := mergedEnv(map[string]string{"API_KEY": "secret", "A_FIRST": "1"})

	var inherited, extra bool
	for _, kv := range env {
		switch kv {
		case "MCPBRIDGE_TEST_INHERITED=yes":
			inherited = true
		case "API_KEY=secret":
			extra = true
		}
	}
	if !inherited {
		t.Fatal("mergedEnv: parent environment not inherited")
	}
	if !extra {
		t.Fatal("mergedEnv: configured variable missing")
	}
	// Configured variables come last, in sorted key order.
	if env[len(env)-2] != "A_FIRST=1" || env[len(env)-1] != "API_KEY=secret" {
		t.Fatalf("mergedEnv: tail %v", env[len(env)-2:])
	}
}
