// Package wire translates between the order service's JSON representation
// and order.Order.
//
// The service speaks the restaurant backend's vocabulary: "estado",
// "fechaPedido", "detalles" and the Spanish status names. English field and
// status names are accepted as well, so a gateway that already translated
// the payload decodes the same way.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ordersync/internal/order"
)

// timestampLayouts are tried in order. The backend sends LocalDateTime
// values without a zone; those are read as UTC. Fractional seconds are
// accepted by every layout.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// orderDTO mirrors the service's order JSON.
type orderDTO struct {
	ID int64 `json:"id"`

	Estado string `json:"estado,omitempty"`
	Status string `json:"status,omitempty"`

	Revision *int64 `json:"revision,omitempty"`
	Version  *int64 `json:"version,omitempty"`

	FechaPedido        string `json:"fechaPedido,omitempty"`
	PlacedAt           string `json:"placedAt,omitempty"`
	FechaActualizacion string `json:"fechaActualizacion,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`

	Total *decimal.Decimal `json:"total,omitempty"`

	TelefonoContacto     string `json:"telefonoContacto,omitempty"`
	DireccionEntrega     string `json:"direccionEntrega,omitempty"`
	InstruccionesEntrega string `json:"instruccionesEntrega,omitempty"`
	TipoPedido           string `json:"tipoPedido,omitempty"`
	MetodoPago           string `json:"metodoPago,omitempty"`

	Detalles []lineDTO `json:"detalles,omitempty"`
}

type lineDTO struct {
	PlatoID        int64            `json:"platoId"`
	PlatoNombre    string           `json:"platoNombre,omitempty"`
	Cantidad       int              `json:"cantidad"`
	PrecioUnitario *decimal.Decimal `json:"precioUnitario,omitempty"`
}

// statusRequest is the body of a status update request.
type statusRequest struct {
	Estado string `json:"estado"`
}

// DecodeOrder decodes a single order payload. Any failure is an
// order.ErrCodeDecode error.
func DecodeOrder(data []byte) (order.Order, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return order.Order{}, order.NewDecodeError("empty payload", nil)
	}

	var dto orderDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return order.Order{}, order.NewDecodeError("malformed order json", err)
	}
	return dto.toOrder()
}

// DecodeOrders decodes a bulk-read response. A body that is not a JSON
// array of objects is a DECODE_ERROR. Records that fail to decode are left
// out of orders and reported in skipped, one DECODE_ERROR each, so a single
// bad record does not cost the rest of the snapshot.
func DecodeOrders(data []byte) (orders []order.Order, skipped []error, err error) {
	var dtos []orderDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, nil, order.NewDecodeError("malformed order list json", err)
	}

	orders = make([]order.Order, 0, len(dtos))
	for i, dto := range dtos {
		o, err := dto.toOrder()
		if err != nil {
			skipped = append(skipped, fmt.Errorf("order[%d]: %w", i, err))
			continue
		}
		orders = append(orders, o)
	}
	return orders, skipped, nil
}

// EncodeOrder renders o in the service's representation.
func EncodeOrder(o order.Order) ([]byte, error) {
	return json.Marshal(fromOrder(o))
}

// EncodeOrders renders a bulk-read response.
func EncodeOrders(orders []order.Order) ([]byte, error) {
	dtos := make([]orderDTO, len(orders))
	for i, o := range orders {
		dtos[i] = fromOrder(o)
	}
	return json.Marshal(dtos)
}

// EncodeStatusRequest renders the body of a status update request.
func EncodeStatusRequest(s order.Status) ([]byte, error) {
	return json.Marshal(statusRequest{Estado: s.Wire()})
}

// DecodeStatusRequest parses the body of a status update request.
func DecodeStatusRequest(data []byte) (order.Status, error) {
	var req statusRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "", order.NewDecodeError("malformed status request", err)
	}
	s, err := order.ParseStatus(req.Estado)
	if err != nil {
		return "", order.NewDecodeError("unknown status", err)
	}
	return s, nil
}

func (d orderDTO) toOrder() (order.Order, error) {
	if d.ID <= 0 {
		return order.Order{}, order.NewDecodeError(fmt.Sprintf("invalid order id %d", d.ID), nil)
	}

	rawStatus := d.Estado
	if rawStatus == "" {
		rawStatus = d.Status
	}
	status, err := order.ParseStatus(rawStatus)
	if err != nil {
		return order.Order{}, order.NewDecodeError(fmt.Sprintf("order %d", d.ID), err)
	}

	placedAt, err := parseTimestamp(firstNonEmpty(d.FechaPedido, d.PlacedAt))
	if err != nil {
		return order.Order{}, order.NewDecodeError(fmt.Sprintf("order %d placed-at", d.ID), err)
	}

	revision, err := d.revision()
	if err != nil {
		return order.Order{}, order.NewDecodeError(fmt.Sprintf("order %d revision", d.ID), err)
	}

	o := order.Order{
		ID:              d.ID,
		Status:          status,
		Revision:        revision,
		PlacedAt:        placedAt,
		Contact:         norm.NFC.String(strings.TrimSpace(d.TelefonoContacto)),
		DeliveryAddress: norm.NFC.String(strings.TrimSpace(d.DireccionEntrega)),
		DeliveryNotes:   norm.NFC.String(strings.TrimSpace(d.InstruccionesEntrega)),
		Kind:            d.TipoPedido,
		PaymentMethod:   d.MetodoPago,
	}
	if d.Total != nil {
		o.Total = *d.Total
	}
	if o.Total.IsNegative() {
		return order.Order{}, order.NewDecodeError(fmt.Sprintf("order %d has negative total %s", d.ID, o.Total), nil)
	}

	for i, l := range d.Detalles {
		if l.Cantidad <= 0 {
			return order.Order{}, order.NewDecodeError(fmt.Sprintf("order %d line %d has quantity %d", d.ID, i, l.Cantidad), nil)
		}
		line := order.Line{
			ItemID:   l.PlatoID,
			ItemName: norm.NFC.String(l.PlatoNombre),
			Quantity: l.Cantidad,
		}
		if l.PrecioUnitario != nil {
			line.UnitPrice = *l.PrecioUnitario
		}
		o.Lines = append(o.Lines, line)
	}
	return o, nil
}

// revision prefers an explicit revision, then an explicit version, then the
// update timestamp in Unix milliseconds. Zero means unversioned.
func (d orderDTO) revision() (int64, error) {
	switch {
	case d.Revision != nil:
		return nonNegative(*d.Revision)
	case d.Version != nil:
		return nonNegative(*d.Version)
	}
	updated := firstNonEmpty(d.FechaActualizacion, d.UpdatedAt)
	if updated == "" {
		return 0, nil
	}
	ts, err := parseTimestamp(updated)
	if err != nil {
		return 0, err
	}
	return ts.UnixMilli(), nil
}

func fromOrder(o order.Order) orderDTO {
	total := o.Total
	rev := o.Revision
	d := orderDTO{
		ID:                   o.ID,
		Estado:               o.Status.Wire(),
		Total:                &total,
		TelefonoContacto:     o.Contact,
		DireccionEntrega:     o.DeliveryAddress,
		InstruccionesEntrega: o.DeliveryNotes,
		TipoPedido:           o.Kind,
		MetodoPago:           o.PaymentMethod,
	}
	if o.Revision > 0 {
		d.Revision = &rev
	}
	if !o.PlacedAt.IsZero() {
		d.FechaPedido = o.PlacedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, l := range o.Lines {
		price := l.UnitPrice
		d.Detalles = append(d.Detalles, lineDTO{
			PlatoID:        l.ItemID,
			PlatoNombre:    l.ItemName,
			Cantidad:       l.Quantity,
			PrecioUnitario: &price,
		})
	}
	return d
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, lastErr)
}

func nonNegative(v int64) (int64, error) {
	if v < 0 {
		return 0, fmt.Errorf("negative revision %d", v)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
