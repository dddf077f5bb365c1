package orders

import "sync"

// PendingStore holds orders that await payment confirmation, keyed by order id.
// It is the sole owner of an order between payment initiation and finalization.
// Entries live in memory only; losing them on restart is accepted.
type PendingStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

func NewPendingStore() *PendingStore {
	return &PendingStore{orders: make(map[string]Order)}
}

// Put registers an order under its id, replacing any previous entry.
func (p *PendingStore) Put(o Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders[o.ID] = o
}

func (p *PendingStore) Get(orderID string) (Order, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	o, ok := p.orders[orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (p *PendingStore) Delete(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return ErrOrderNotFound
	}
	delete(p.orders, orderID)
	return nil
}

// Len reports how many orders are awaiting confirmation.
func (p *PendingStore) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orders)
}
