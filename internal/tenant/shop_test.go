package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeShop(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
		ok   bool
	}{
		"plain":       {"demo-store.myshopify.com", "demo-store.myshopify.com", true},
		"scheme":      {"https://Demo-Store.myshopify.com/admin", "demo-store.myshopify.com", true},
		"foreign":     {"evil.example.com", "", false},
		"nested":      {"a.b.myshopify.com", "", false},
		"empty name":  {".myshopify.com", "", false},
		"bad char":    {"de_mo.myshopify.com", "", false},
		"blank input": {"  ", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := NormalizeShop(tc.in)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestShopContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	_, ok = FromContext(WithShop(context.Background(), "  "))
	require.False(t, ok)

	shop, ok := FromContext(WithShop(context.Background(), "demo.myshopify.com"))
	require.True(t, ok)
	require.Equal(t, "demo.myshopify.com", shop)
}

func TestPrefixKey(t *testing.T) {
	require.Equal(t, "shop:demo.myshopify.com:plan", PrefixKey("demo.myshopify.com", "plan"))
	require.Equal(t, "plan", PrefixKey("", "plan"))
}
