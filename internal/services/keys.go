package services

import "fmt"

// Cache keys for bid reads. Every bid write drops everything under
// bidCachePrefix.
const bidCachePrefix = "storefront.bid."

func bidByIDKey(id string) string {
	return fmt.Sprintf("%sid-%s", bidCachePrefix, id)
}

func bidsByProductKey(productID string) string {
	return fmt.Sprintf("%sproduct-%s", bidCachePrefix, productID)
}

func bidsByCustomerKey(customerID string) string {
	return fmt.Sprintf("%scustomer-%s", bidCachePrefix, customerID)
}
