// Package nop discards document events when no broker is configured.
package nop

import (
	"context"

	"github.com/kirillkom/policy-query/internal/core/domain"
)

type Publisher struct{}

func (Publisher) PublishDocumentEvent(context.Context, domain.DocumentEvent) error {
	return nil
}
