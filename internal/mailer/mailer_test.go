package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeTransport struct {
	sent   []*mail.Msg
	failTo string
}

func (f *fakeTransport) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	for _, msg := range messages {
		to := msg.GetToString()
		if f.failTo != "" && len(to) == 1 && to[0] == "<"+f.failTo+">" {
			return errors.New("mailbox unavailable")
		}
		f.sent = append(f.sent, msg)
	}
	return nil
}

func TestSendBuildsMessage(t *testing.T) {
	transport := &fakeTransport{}
	m := NewWithTransport("taller@bjbyte.local", transport)

	err := m.Send(context.Background(), "carlos@example.com", "Factura", "<p>hola</p>",
		Attachment{Name: "factura.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	msg := transport.sent[0]
	assert.Equal(t, []string{"<carlos@example.com>"}, msg.GetToString())
	assert.Equal(t, []string{"Factura"}, msg.GetGenHeader(mail.HeaderSubject))
	assert.Len(t, msg.GetAttachments(), 1)
}

func TestSendSkipsBlankRecipient(t *testing.T) {
	transport := &fakeTransport{}
	m := NewWithTransport("taller@bjbyte.local", transport)

	require.NoError(t, m.Send(context.Background(), "  ", "x", "y"))
	assert.Empty(t, transport.sent)
}

func TestSendEachContinuesAfterFailure(t *testing.T) {
	transport := &fakeTransport{failTo: "b@example.com"}
	m := NewWithTransport("taller@bjbyte.local", transport)

	err := m.SendEach(context.Background(), []string{"a@example.com", "b@example.com", "c@example.com"}, "Promo", "<p>10%</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b@example.com")
	assert.Len(t, transport.sent, 2)
}

func TestSendBulkUsesBcc(t *testing.T) {
	transport := &fakeTransport{}
	m := NewWithTransport("taller@bjbyte.local", transport)

	require.NoError(t, m.SendBulk(context.Background(), []string{"a@example.com", "b@example.com"}, "Promo", "<p>x</p>"))
	require.Len(t, transport.sent, 1)
	assert.Empty(t, transport.sent[0].GetToString())
	assert.Len(t, transport.sent[0].GetBccString(), 2)

	require.NoError(t, m.SendBulk(context.Background(), nil, "Promo", "<p>x</p>"))
	assert.Len(t, transport.sent, 1)
}

func TestNewRequiresHostAndSender(t *testing.T) {
	_, err := New(Config{Host: "smtp.example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
