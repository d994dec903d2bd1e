package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the domain-store invariants checked after a quiesced run.
// Each query selects violating rows; an empty result means the invariant
// holds.
func All() []Oracle {
	return []Oracle{
		{
			// Every aggregate's owned address and contact must exist.
			Name: "O1_dangling_owned_refs",
			SQL: `SELECT 'doctor' AS kind, d.id FROM doctors d
                  LEFT JOIN addresses a ON a.id = d.address_id
                  LEFT JOIN contacts c ON c.id = d.contact_id
                  WHERE a.id IS NULL OR c.id IS NULL
                  UNION ALL
                  SELECT 'patient', p.id FROM patients p
                  LEFT JOIN addresses a ON a.id = p.address_id
                  LEFT JOIN contacts c ON c.id = p.contact_id
                  WHERE a.id IS NULL OR c.id IS NULL
                  UNION ALL
                  SELECT 'hospital', h.id FROM hospitals h
                  LEFT JOIN addresses a ON a.id = h.address_id
                  LEFT JOIN contacts c ON c.id = h.contact_id
                  WHERE a.id IS NULL OR c.id IS NULL`,
		},
		{
			// Deprovisioning tears owned rows down explicitly; no address or
			// contact may survive its owner.
			Name: "O2_leaked_owned_rows",
			SQL: `SELECT a.id FROM addresses a
                  WHERE NOT EXISTS (SELECT 1 FROM doctors d WHERE d.address_id = a.id)
                    AND NOT EXISTS (SELECT 1 FROM patients p WHERE p.address_id = a.id)
                    AND NOT EXISTS (SELECT 1 FROM hospitals h WHERE h.address_id = a.id)
                  UNION ALL
                  SELECT c.id FROM contacts c
                  WHERE NOT EXISTS (SELECT 1 FROM doctors d WHERE d.contact_id = c.id)
                    AND NOT EXISTS (SELECT 1 FROM patients p WHERE p.contact_id = c.id)
                    AND NOT EXISTS (SELECT 1 FROM hospitals h WHERE h.contact_id = c.id)`,
		},
		{
			// Child rows are bound to their owning doctor.
			Name: "O3_orphan_children",
			SQL: `SELECT q.id::text FROM qualifications q
                  LEFT JOIN doctors d ON d.id = q.doctor_id
                  WHERE d.id IS NULL
                  UNION ALL
                  SELECT ds.doctor_id::text FROM doctor_specializations ds
                  LEFT JOIN doctors d ON d.id = ds.doctor_id
                  WHERE d.id IS NULL`,
		},
		{
			// Link rows must resolve against the shared catalog.
			Name: "O4_dangling_catalog_links",
			SQL: `SELECT ds.doctor_id, ds.specialization_id FROM doctor_specializations ds
                  LEFT JOIN specializations s ON s.id = ds.specialization_id
                  WHERE s.id IS NULL`,
		},
		{
			// Lifecycle events carry only known topics.
			Name: "O5_outbox_topics",
			SQL: `SELECT id, topic FROM outbox
                  WHERE topic NOT IN ('entity.provisioned', 'entity.deprovisioned')`,
		},
		{
			// Services reference live owners.
			Name: "O6_orphan_services",
			SQL: `SELECT lt.id::text FROM lab_tests lt
                  LEFT JOIN hospitals h ON h.id = lt.hospital_id
                  WHERE h.id IS NULL
                  UNION ALL
                  SELECT m.id::text FROM medications m
                  LEFT JOIN patients p ON p.id = m.patient_id
                  WHERE p.id IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}

// CrossStoreParity checks the invariant no single-store query can: every
// aggregate's credential must exist in the identity store, and every
// provisioned-role credential must back exactly one live aggregate. It
// returns the ids violating each direction.
func CrossStoreParity(ctx context.Context, domainPool, identityPool *pgxpool.Pool) (dangling, orphaned []string, err error) {
	credentialIDs := map[string]bool{}
	rows, err := identityPool.Query(ctx, `SELECT id::text FROM credentials WHERE role IN ('doctor', 'patient', 'hospital')`)
	if err != nil {
		return nil, nil, fmt.Errorf("load credentials: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, nil, err
		}
		credentialIDs[id] = false
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	aggRows, err := domainPool.Query(ctx, `SELECT credential_id::text FROM doctors
        UNION ALL SELECT credential_id::text FROM patients
        UNION ALL SELECT credential_id::text FROM hospitals`)
	if err != nil {
		return nil, nil, fmt.Errorf("load aggregates: %w", err)
	}
	for aggRows.Next() {
		var credID string
		if err := aggRows.Scan(&credID); err != nil {
			aggRows.Close()
			return nil, nil, err
		}
		if _, ok := credentialIDs[credID]; ok {
			credentialIDs[credID] = true
		} else {
			dangling = append(dangling, credID)
		}
	}
	aggRows.Close()
	if err := aggRows.Err(); err != nil {
		return nil, nil, err
	}

	for id, backed := range credentialIDs {
		if !backed {
			orphaned = append(orphaned, id)
		}
	}
	return dangling, orphaned, nil
}
