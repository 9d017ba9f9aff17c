// ABOUTME: Voice profile and user preference persistence
// ABOUTME: Profile upsert and roster mirror commit in one transaction so readers never see partial state

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetVoiceProfile upserts the voice profile for an agent and mirrors the
// voice fields into the agent's roster record. Both writes happen inside one
// transaction: readers observe either the old state or the new state, never a
// profile without its mirror. Concurrent upserts for the same agent serialize
// at the database; last writer wins wholesale (params are replaced, not
// merged).
//
// The returned mirrored flag is false when the agent has no roster record;
// the profile write still commits in that case, since roster mirroring is
// best-effort metadata rather than a referential-integrity requirement.
func (s *SQLiteStore) SetVoiceProfile(ctx context.Context, profile *VoiceProfile) (bool, error) {
	params, err := encodeJSON(profile.Params)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapWriteErr("beginning voice transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO voice_profiles (agent_id, voice_id, params_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			voice_id = excluded.voice_id,
			params_json = excluded.params_json,
			updated_at = excluded.updated_at
	`,
		profile.AgentID,
		profile.VoiceID,
		params,
		formatTime(profile.UpdatedAt),
	)
	if err != nil {
		return false, wrapWriteErr("upserting voice profile", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET voice_id = ?, voice_enabled = 1, updated_at = ?
		WHERE name = ?
	`,
		profile.VoiceID,
		formatTime(profile.UpdatedAt),
		profile.AgentID,
	)
	if err != nil {
		return false, wrapWriteErr("mirroring voice to roster", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, wrapWriteErr("committing voice transaction", err)
	}

	mirrored := rowsAffected > 0
	s.logger.Debug("set voice profile",
		"agent_id", profile.AgentID,
		"voice_id", profile.VoiceID,
		"mirrored", mirrored,
	)
	return mirrored, nil
}

// GetVoiceProfile retrieves the voice profile for an agent.
// Returns ErrNotFound if the agent has no profile.
func (s *SQLiteStore) GetVoiceProfile(ctx context.Context, agentID string) (*VoiceProfile, error) {
	query := `
		SELECT agent_id, voice_id, params_json, updated_at
		FROM voice_profiles
		WHERE agent_id = ?
	`

	var profile VoiceProfile
	var params sql.NullString
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, agentID).Scan(
		&profile.AgentID,
		&profile.VoiceID,
		&params,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying voice profile: %w", err)
	}

	profile.Params, err = decodeJSON(params)
	if err != nil {
		return nil, err
	}
	profile.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &profile, nil
}

// SetPreference upserts a user's session preference record.
func (s *SQLiteStore) SetPreference(ctx context.Context, pref *UserPreference) error {
	session, err := encodeJSON(pref.Session)
	if err != nil {
		return err
	}

	voiceEnabled := 0
	if pref.VoiceEnabled {
		voiceEnabled = 1
	}

	query := `
		INSERT INTO user_preferences (user_id, voice_enabled, preferred_agent, session_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			voice_enabled = excluded.voice_enabled,
			preferred_agent = excluded.preferred_agent,
			session_json = excluded.session_json,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		pref.UserID,
		voiceEnabled,
		pref.PreferredAgent,
		session,
		formatTime(pref.UpdatedAt),
	)
	if err != nil {
		return wrapWriteErr("upserting preference", err)
	}

	s.logger.Debug("set preference", "user_id", pref.UserID, "voice_enabled", pref.VoiceEnabled)
	return nil
}

// GetPreference retrieves a user's preference record.
// Returns ErrNotFound if the user has none.
func (s *SQLiteStore) GetPreference(ctx context.Context, userID string) (*UserPreference, error) {
	query := `
		SELECT user_id, voice_enabled, preferred_agent, session_json, updated_at
		FROM user_preferences
		WHERE user_id = ?
	`

	var pref UserPreference
	var voiceEnabled int
	var session sql.NullString
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&pref.UserID,
		&voiceEnabled,
		&pref.PreferredAgent,
		&session,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preference: %w", err)
	}

	pref.VoiceEnabled = voiceEnabled != 0
	pref.Session, err = decodeJSON(session)
	if err != nil {
		return nil, err
	}
	pref.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &pref, nil
}
