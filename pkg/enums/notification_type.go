package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeNewSale            NotificationType = "new_sale"
	NotificationTypeOrderConfirmed     NotificationType = "order_confirmed"
	NotificationTypeOrderShipped       NotificationType = "order_shipped"
	NotificationTypeOrderDelivered     NotificationType = "order_delivered"
	NotificationTypeOrderCancelled     NotificationType = "order_cancelled"
	NotificationTypeWalletDeposit      NotificationType = "wallet_deposit"
	NotificationTypeWalletWithdrawal   NotificationType = "wallet_withdrawal"
	NotificationTypeSubscriptionActive NotificationType = "subscription_active"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeNewSale,
	NotificationTypeOrderConfirmed,
	NotificationTypeOrderShipped,
	NotificationTypeOrderDelivered,
	NotificationTypeOrderCancelled,
	NotificationTypeWalletDeposit,
	NotificationTypeWalletWithdrawal,
	NotificationTypeSubscriptionActive,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
