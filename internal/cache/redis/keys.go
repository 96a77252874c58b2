package redis

func reservationKey(productID, cartID string) string {
	return "product:reservation:" + productID + ":" + cartID
}

func reservedIndexKey(productID string) string {
	return "product:reserved:" + productID
}

func cartKey(cartID string) string {
	return "cart:" + cartID
}

func cartClosedKey(cartID string) string {
	return "cart:closed:" + cartID
}

func cartLockKey(cartID string) string {
	return "lock:cart:" + cartID
}
