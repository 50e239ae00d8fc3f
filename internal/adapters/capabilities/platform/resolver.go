package platform

import (
	"context"
	"errors"
	"strings"

	"project-tracker/internal/ports/capabilities"
)

// Resolver implementa capabilities.Resolver.
//
// Los usuarios de la allow-list tienen platform:admin sin consultar upstream. Para el
// resto se consulta el servicio remoto si está configurado; si no, la respuesta es
// false (nunca se concede por falta de configuración).
type Resolver struct {
	client *Client
	admins map[string]struct{}
}

var _ capabilities.Resolver = (*Resolver)(nil)

func NewResolver(client *Client, platformAdminIDs []string) *Resolver {
	admins := make(map[string]struct{}, len(platformAdminIDs))
	for _, id := range platformAdminIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Resolver{client: client, admins: admins}
}

func (r *Resolver) Has(ctx context.Context, userID string, capability string) (bool, error) {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return false, errors.New("capability required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}

	if capability == capabilities.PlatformAdmin {
		if _, ok := r.admins[userID]; ok {
			return true, nil
		}
	}

	if r.client == nil || !r.client.IsConfigured() {
		return false, nil
	}

	resp, err := r.client.GetCapabilities(ctx, userID)
	if err != nil {
		return false, err
	}
	return resp.Capabilities[capability], nil
}
