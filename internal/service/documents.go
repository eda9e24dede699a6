package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"bjbyte/backend/internal/apperror"
	"bjbyte/backend/internal/document"
	"bjbyte/backend/internal/domain"
	"bjbyte/backend/internal/exchange"
	"bjbyte/backend/internal/mailer"
	"bjbyte/backend/internal/reporting"
)

func (s *Service) SaleInvoicePDF(ctx context.Context, saleID string) ([]byte, error) {
	if s.docs == nil {
		return nil, apperror.NewUnavailable("pdf rendering is not configured", nil)
	}
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	pdf, err := s.docs.SalePDF(ctx, sale)
	if err != nil {
		return nil, apperror.NewUnavailable("invoice rendering failed", err)
	}
	return pdf, nil
}

func (s *Service) SalesReportPDF(ctx context.Context, filter reporting.Filter) ([]byte, error) {
	if s.docs == nil {
		return nil, apperror.NewUnavailable("pdf rendering is not configured", nil)
	}
	report, err := s.BuildSalesReport(ctx, filter)
	if err != nil {
		return nil, err
	}
	pdf, err := s.docs.SalesReportPDF(ctx, report)
	if err != nil {
		return nil, apperror.NewUnavailable("report rendering failed", err)
	}
	return pdf, nil
}

func (s *Service) SalesXLSX(ctx context.Context, filter domain.SaleFilter) ([]byte, error) {
	sales, err := s.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}
	data, err := document.SalesXLSX(sales)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return data, nil
}

// EmailInvoice mails the invoice PDF to the registered client of the sale.
func (s *Service) EmailInvoice(ctx context.Context, saleID string) error {
	if s.mail == nil {
		return apperror.NewUnavailable("email is not configured", nil)
	}
	sale, err := s.GetSale(ctx, saleID)
	if err != nil {
		return err
	}
	if sale.ClientID == "" {
		return apperror.NewBusinessRule(apperror.CodeInvalidInput, "sale has no registered client")
	}
	client, err := s.GetClient(ctx, sale.ClientID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(client.Email) == "" {
		return apperror.NewBusinessRule(apperror.CodeInvalidInput, "client has no email").WithDetail("client_id", client.ID)
	}

	pdf, err := s.SaleInvoicePDF(ctx, sale.ID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s - Factura %s", s.issuer, sale.ID)
	body := fmt.Sprintf("<p>Hola %s,</p><p>Adjuntamos la factura <strong>%s</strong> por %s.</p><p>Gracias por su compra.</p>",
		html.EscapeString(client.Name), html.EscapeString(sale.ID), sale.Total.StringFixed(2))
	err = s.mail.Send(ctx, client.Email, subject, body, mailer.Attachment{
		Name:        "factura-" + sale.ID + ".pdf",
		ContentType: "application/pdf",
		Data:        pdf,
	})
	if err != nil {
		return apperror.NewUnavailable("invoice email failed", err)
	}
	s.logFor(ctx).Infow("invoice emailed", "sale_id", sale.ID, "client_id", client.ID)
	return nil
}

// SendEmail sends a free-form message, either one per recipient or as a single BCC message.
func (s *Service) SendEmail(ctx context.Context, req domain.EmailRequest) error {
	if s.mail == nil {
		return apperror.NewUnavailable("email is not configured", nil)
	}
	if err := s.check(req, apperror.NewValidation); err != nil {
		return err
	}
	recipients := dedupe(req.To)
	send := s.mail.SendEach
	if req.Bulk {
		send = s.mail.SendBulk
	}
	if err := send(ctx, recipients, req.Subject, req.Body); err != nil {
		return apperror.NewUnavailable("email delivery failed", err)
	}
	return nil
}

// Exchange rates

type Conversion struct {
	Amount    domain.Money `json:"amount"`
	Currency  string       `json:"currency"`
	Converted domain.Money `json:"converted"`
}

func (s *Service) ExchangeStatus() (exchange.Status, error) {
	if s.rates == nil {
		return exchange.Status{}, apperror.NewUnavailable("exchange rates are not configured", nil)
	}
	return s.rates.Status(), nil
}

func (s *Service) ConvertFromCOP(amount domain.Money, currency string) (Conversion, error) {
	if s.rates == nil {
		return Conversion{}, apperror.NewUnavailable("exchange rates are not configured", nil)
	}
	if amount.IsNegative() {
		return Conversion{}, apperror.NewInvalidInput("amount must not be negative")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	return Conversion{
		Amount:    amount,
		Currency:  currency,
		Converted: s.rates.ConvertFromCOP(amount, currency),
	}, nil
}
