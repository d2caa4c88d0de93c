package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// =============================================================================
// Config Hash
// =============================================================================

// hashedPlan is the canonical shape fed into the digest. Maps serialize with
// sorted keys under encoding/json, which makes the digest deterministic.
type hashedPlan struct {
	Name          string            `json:"name"`
	Image         string            `json:"image"`
	Command       []string          `json:"command,omitempty"`
	Entrypoint    []string          `json:"entrypoint,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	Ports         []PortPlan        `json:"ports,omitempty"`
	Volumes       []VolumePlan      `json:"volumes,omitempty"`
	Networks      []string          `json:"networks,omitempty"`
	RestartPolicy RestartPolicyPlan `json:"restart_policy"`
	Resources     ResourcePlan      `json:"resources"`
	HealthCheck   *HealthCheckPlan  `json:"healthcheck,omitempty"`
}

// ConfigHash digests a container plan into a short hex string. The digest
// is stored as a label on the created container; on re-apply, an unchanged
// digest means the running container already matches the document and is
// kept as-is. The config hash label itself is excluded from the digest.
func ConfigHash(p ContainerPlan) string {
	labels := make(map[string]string, len(p.Labels))
	for k, v := range p.Labels {
		if k == LabelConfigHash {
			continue
		}
		labels[k] = v
	}

	canonical := hashedPlan{
		Name:          p.Name,
		Image:         p.Image,
		Command:       p.Command,
		Entrypoint:    p.Entrypoint,
		Env:           p.Env,
		Labels:        labels,
		Ports:         p.Ports,
		Volumes:       p.Volumes,
		Networks:      p.Networks,
		RestartPolicy: p.RestartPolicy,
		Resources:     p.Resources,
		HealthCheck:   p.HealthCheck,
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshaling plain value types cannot fail; keep the signature pure.
		return ""
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}
