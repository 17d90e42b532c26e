package gatttest

import (
	"sync"

	"github.com/user/gattclient/wire/att"
	"github.com/user/gattclient/wire/gatt"
)

// SubscriptionState is what a client enabled through a CCCD
type SubscriptionState struct {
	Handle          att.Handle // characteristic value handle
	NotifyEnabled   bool
	IndicateEnabled bool
}

// CCCDManager tracks the CCCD values written by the connected client,
// keyed by characteristic value handle.
type CCCDManager struct {
	mu            sync.RWMutex
	subscriptions map[att.Handle]*SubscriptionState
}

// NewCCCDManager creates an empty manager
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{
		subscriptions: make(map[att.Handle]*SubscriptionState),
	}
}

// SetSubscription applies a CCCD value written for a characteristic
func (cm *CCCDManager) SetSubscription(valueHandle att.Handle, cccdValue []byte) error {
	notify, indicate, err := gatt.DecodeCCCDValue(cccdValue)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !notify && !indicate {
		delete(cm.subscriptions, valueHandle)
		return nil
	}
	cm.subscriptions[valueHandle] = &SubscriptionState{
		Handle:          valueHandle,
		NotifyEnabled:   notify,
		IndicateEnabled: indicate,
	}
	return nil
}

// Get returns the subscription state for a characteristic
func (cm *CCCDManager) Get(valueHandle att.Handle) (SubscriptionState, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	s, ok := cm.subscriptions[valueHandle]
	if !ok {
		return SubscriptionState{}, false
	}
	return *s, true
}

// IsNotifyEnabled returns true if notifications are enabled for a characteristic
func (cm *CCCDManager) IsNotifyEnabled(valueHandle att.Handle) bool {
	s, ok := cm.Get(valueHandle)
	return ok && s.NotifyEnabled
}

// IsIndicateEnabled returns true if indications are enabled for a characteristic
func (cm *CCCDManager) IsIndicateEnabled(valueHandle att.Handle) bool {
	s, ok := cm.Get(valueHandle)
	return ok && s.IndicateEnabled
}

// Clear removes all subscriptions
func (cm *CCCDManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.subscriptions = make(map[att.Handle]*SubscriptionState)
}

// Count returns the number of active subscriptions
func (cm *CCCDManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.subscriptions)
}
