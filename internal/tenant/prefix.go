package tenant

// PrefixKey namespaces a Redis key under a shop: shop:{shop}:{key}.
func PrefixKey(shop, key string) string {
	if shop == "" {
		return key
	}
	return "shop:" + shop + ":" + key
}
