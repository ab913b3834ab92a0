package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"easymanager/internal/models"
)

// Enqueuer accepts messages for background delivery.
type Enqueuer interface {
	Enqueue(msg Message) bool
}

// Dispatcher decides which alerts a product state warrants and who receives
// them. Alerts go through the queue; NotifyAdmin and the account mails send
// inline.
type Dispatcher struct {
	adminEmail string
	queue      Enqueuer
	mailer     Mailer
	now        func() time.Time
	logger     *zap.Logger
}

type DispatcherOption func(*Dispatcher)

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(adminEmail string, queue Enqueuer, mailer Mailer, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		adminEmail: strings.TrimSpace(adminEmail),
		queue:      queue,
		mailer:     mailer,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckStockLevel queues a low-stock alert to the admin and, when distinct,
// the acting user. It reports whether anything was queued.
func (d *Dispatcher) CheckStockLevel(p models.Product, actingUserEmail string) bool {
	if !p.IsLowStock() {
		return false
	}

	recipients := d.recipients(actingUserEmail)
	if len(recipients) == 0 {
		return false
	}

	message := fmt.Sprintf(`Low Stock Alert!
Product: %s
Current Stock: %d
Low Stock Threshold: %d
Category: %s

Please reorder this product soon to maintain adequate inventory levels.`,
		orNA(p.Name), p.Stock, p.LowStockThreshold, orNA(p.Category))

	queued := false
	for _, to := range recipients {
		if d.enqueue(to, "User", message) {
			queued = true
		}
	}
	if queued {
		d.logger.Info("low stock notification queued",
			zap.String("product", p.Name),
			zap.Strings("recipients", recipients),
		)
	}
	return queued
}

// CheckExpiration queues an admin alert when the product expires within a
// month.
func (d *Dispatcher) CheckExpiration(p models.Product) bool {
	if p.ExpirationDate == nil || d.adminEmail == "" {
		return false
	}

	now := d.now()
	if p.ExpirationDate.After(now.AddDate(0, 1, 0)) {
		return false
	}

	message := fmt.Sprintf(`Product Expiration Alert!
Product: %s
Expiration Date: %s
Days Until Expiration: %d
Current Stock: %d
Batch Number: %s
Category: %s

Please take appropriate action for this soon-to-expire inventory.`,
		orNA(p.Name),
		p.ExpirationDate.Format(models.DayLayout),
		models.DaysUntil(now, *p.ExpirationDate),
		p.Stock,
		orNA(p.BatchNumber),
		orNA(p.Category))

	return d.enqueue(d.adminEmail, "Admin", message)
}

// NotifyNearlyExpired sends the admin one list of soon-to-expire products.
func (d *Dispatcher) NotifyNearlyExpired(products []models.Product) bool {
	if len(products) == 0 || d.adminEmail == "" {
		return false
	}

	now := d.now()
	lines := make([]string, 0, len(products))
	for _, p := range products {
		if p.ExpirationDate == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s (expires in %d days)", p.Name, models.DaysUntil(now, *p.ExpirationDate)))
	}

	message := "The following products are nearing expiration:\n\n" + strings.Join(lines, "\n")
	return d.enqueue(d.adminEmail, "Admin", message)
}

// SendWeeklySummary queues the weekly inventory report when either list has
// entries.
func (d *Dispatcher) SendWeeklySummary(lowStock, expiring []models.Product) bool {
	if d.adminEmail == "" || (len(lowStock) == 0 && len(expiring) == 0) {
		return false
	}

	var b strings.Builder
	b.WriteString("Weekly Inventory Status Report\n\n")
	fmt.Fprintf(&b, "Low Stock Products (%d):\n", len(lowStock))
	for _, p := range lowStock {
		fmt.Fprintf(&b, "- %s: %d units remaining\n", p.Name, p.Stock)
	}
	fmt.Fprintf(&b, "\nProducts Expiring Within 1 Month (%d):\n", len(expiring))
	for _, p := range expiring {
		if p.ExpirationDate != nil {
			fmt.Fprintf(&b, "- %s: Expires on %s\n", p.Name, p.ExpirationDate.Format(models.DayLayout))
		}
	}
	b.WriteString("\nPlease take necessary action for these products.")

	return d.enqueue(d.adminEmail, "Admin", b.String())
}

// NotifyAdmin sends immediately and returns the delivery error, since the
// caller asked for this message explicitly.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, subject, message string) error {
	if d.adminEmail == "" {
		return fmt.Errorf("admin email is not configured")
	}

	msg, err := notification(d.adminEmail, "Admin", message)
	if err != nil {
		return err
	}
	if s := strings.TrimSpace(subject); s != "" {
		msg.Subject = s
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("admin notification failed", zap.Error(err))
		return fmt.Errorf("sending admin notification: %w", err)
	}
	return nil
}

// SendCredentials mails a username and password to a new staff member.
func (d *Dispatcher) SendCredentials(ctx context.Context, to, username, password string) error {
	msg, err := credentials(strings.TrimSpace(to), username, password)
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("credentials mail failed", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("sending credentials: %w", err)
	}
	return nil
}

// SendPasswordReset mails a reset link that expires after expiry.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, username, link string, expiry time.Duration) error {
	msg, err := passwordReset(strings.TrimSpace(to), username, link, expiry)
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("password reset mail failed", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("sending password reset: %w", err)
	}
	return nil
}

func (d *Dispatcher) recipients(actingUserEmail string) []string {
	out := make([]string, 0, 2)
	if d.adminEmail != "" {
		out = append(out, d.adminEmail)
	}
	if user := strings.TrimSpace(actingUserEmail); user != "" && !strings.EqualFold(user, d.adminEmail) {
		out = append(out, user)
	}
	return out
}

func (d *Dispatcher) enqueue(to, username, message string) bool {
	msg, err := notification(to, username, message)
	if err != nil {
		d.logger.Error("building notification failed", zap.Error(err))
		return false
	}
	return d.queue.Enqueue(msg)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
