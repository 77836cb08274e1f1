package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/coordinator"
	"amina-zigbee/internal/expose"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/store"
)

const maxBodyBytes = 1 << 20

// statusFor maps coordinator and codec errors to HTTP status codes.
func statusFor(err error) int {
	var verr *codec.ValidationError
	var miss *codec.SchemaMissError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrUnknownDevice), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrUnidentified), errors.Is(err, coordinator.ErrNameInUse):
		return http.StatusConflict
	case errors.As(err, &miss), errors.Is(err, codec.ErrUnsupportedKey):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

func (s *Server) fail(w http.ResponseWriter, op, ieee string, err error) {
	status := statusFor(err)
	if status == http.StatusBadGateway {
		s.logger.Error(op, "ieee", ieee, "err", err)
	} else {
		s.logger.Debug(op, "ieee", ieee, "err", err)
	}
	s.writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Devices())
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	dev, err := s.coord.Device(ieee)
	if err != nil {
		s.fail(w, "get device", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	var req renameDeviceRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.coord.Rename(ieee, req.FriendlyName); err != nil {
		s.fail(w, "rename device", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": req.FriendlyName})
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	if err := s.coord.Remove(ieee); err != nil {
		s.fail(w, "delete device", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIExposes(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	sc, err := s.coord.Schema(ieee)
	if err != nil {
		s.fail(w, "exposes", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusOK, expose.For(sc))
}

// handleAPISet accepts the same payload as the MQTT /set topic:
// {"charge_limit": 16, "state": "ON"}.
func (s *Server) handleAPISet(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	var values map[string]any
	if err := decodeBody(w, r, &values); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(values) == 0 {
		s.writeError(w, http.StatusBadRequest, "no values to set")
		return
	}
	if err := s.coord.Apply(r.Context(), ieee, values); err != nil {
		s.fail(w, "set", ieee, err)
		return
	}
	state, err := s.coord.State(ieee)
	if err != nil {
		s.fail(w, "set", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

type getRequest struct {
	Keys []string `json:"keys"`
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	var req getRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Keys) == 0 {
		s.writeError(w, http.StatusBadRequest, "keys must not be empty")
		return
	}
	if len(req.Keys) > 50 {
		s.writeError(w, http.StatusBadRequest, "keys limited to 50")
		return
	}

	var errs []error
	for _, key := range req.Keys {
		if _, err := s.coord.Get(r.Context(), ieee, key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.fail(w, "get", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"status": "requested", "keys": req.Keys})
}

func (s *Server) handleAPIConfigure(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	if err := s.coord.Configure(r.Context(), ieee); err != nil {
		s.fail(w, "configure", ieee, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fieldView struct {
	Key           string   `json:"key"`
	Cluster       uint16   `json:"cluster"`
	AttributeID   uint16   `json:"attribute_id"`
	AttributeName string   `json:"attribute_name"`
	DataType      uint8    `json:"data_type"`
	Decoding      string   `json:"decoding"`
	Unit          string   `json:"unit,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Step          *float64 `json:"step,omitempty"`
}

type schemaView struct {
	Revision         schema.Revision `json:"revision"`
	Description      string          `json:"description"`
	Endpoint         uint8           `json:"endpoint"`
	ManufacturerCode uint16          `json:"manufacturer_code"`
	Proprietary      uint16          `json:"proprietary_cluster"`
	StatusLayout     string          `json:"status_layout"`
	Alarms           []string        `json:"alarms"`
	Fields           []fieldView     `json:"fields"`
}

func newSchemaView(sc *schema.Schema) schemaView {
	v := schemaView{
		Revision:         sc.Revision(),
		Description:      sc.Description(),
		Endpoint:         sc.Endpoint(),
		ManufacturerCode: sc.ManufacturerCode(),
		Proprietary:      sc.Proprietary(),
		StatusLayout:     sc.StatusLayout().String(),
		Alarms:           []string(sc.Alarms()),
	}
	for _, f := range sc.Fields() {
		fv := fieldView{
			Key:           f.Key,
			Cluster:       f.Cluster,
			AttributeID:   f.Attribute.ID,
			AttributeName: f.Attribute.Name,
			DataType:      f.Attribute.Type,
			Decoding:      f.Decoding.String(),
			Unit:          f.Unit,
		}
		if f.Settable() {
			fv.Min, fv.Max, fv.Step = &f.Min, &f.Max, &f.Step
		}
		v.Fields = append(v.Fields, fv)
	}
	return v
}

func (s *Server) handleAPIListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := s.coord.Schemas()
	out := make([]schemaView, 0, len(schemas.Revisions()))
	for _, rev := range schemas.Revisions() {
		if sc, ok := schemas.Get(rev); ok {
			out = append(out, newSchemaView(sc))
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	if s.clusters == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.clusters.All())
}
