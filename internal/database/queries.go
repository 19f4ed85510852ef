package database

const (
	// User queries
	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, username, created_at, updated_at)
		VALUES (?, ?, ?, ?)`

	queryGetUserByUsername = `
		SELECT id, username, wallet_address, balance, created_at, updated_at
		FROM users
		WHERE username = ?`

	queryGetUserById = `
		SELECT id, username, wallet_address, balance, created_at, updated_at
		FROM users
		WHERE id = ?`

	queryBindWallet = `
		UPDATE users
		SET wallet_address = ?, updated_at = ?
		WHERE id = ? AND (wallet_address IS NULL OR wallet_address = ?)`

	queryUpdateBalance = `
		UPDATE users SET balance = ?, updated_at = ? WHERE id = ?`

	// Match queries
	matchColumns = `
		id, game_type, status, creator_id, joiner_id, wager, winner,
		creator_escrow_tx, joiner_escrow_tx, payout_tx_hash,
		creator_fields, joiner_fields,
		creator_before, creator_after, joiner_before, joiner_after,
		check_attempts, next_check_at, created_at, started_at, finished_at`

	queryInsertMatch = `
		INSERT INTO matches (
			id, game_type, status, creator_id, wager,
			creator_escrow_tx, creator_fields, check_attempts, next_check_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`

	queryGetMatch = `
		SELECT ` + matchColumns + ` FROM matches WHERE id = ?`

	queryGetMatchStatus = `
		SELECT status FROM matches WHERE id = ?`

	queryListOpenMatches = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'WAITING' AND game_type = ?
		ORDER BY created_at`

	queryListDuePlaying = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'PLAYING' AND game_type = ? AND next_check_at <= ?
		ORDER BY next_check_at`

	queryListUnpaidFinished = `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'FINISHED' AND payout_tx_hash IS NULL
		ORDER BY finished_at`

	// Conditional transitions. RowsAffected distinguishes winner from loser.
	queryAttachJoiner = `
		UPDATE matches
		SET status = 'PLAYING', joiner_id = ?, joiner_fields = ?, joiner_escrow_tx = ?,
		    creator_before = ?, joiner_before = ?, started_at = ?, next_check_at = ?
		WHERE id = ? AND status = 'WAITING' AND joiner_id IS NULL`

	queryFinishMatch = `
		UPDATE matches
		SET status = 'FINISHED', winner = ?, finished_at = ?
		WHERE id = ? AND status = 'PLAYING'`

	queryCancelMatch = `
		UPDATE matches
		SET status = 'CANCELLED'
		WHERE id = ? AND status = 'WAITING'`

	querySetPayoutTx = `
		UPDATE matches
		SET payout_tx_hash = ?
		WHERE id = ? AND payout_tx_hash IS NULL`

	queryUpdateAfterSnapshots = `
		UPDATE matches SET creator_after = ?, joiner_after = ? WHERE id = ?`

	queryUpdateCheckState = `
		UPDATE matches SET check_attempts = ?, next_check_at = ? WHERE id = ?`

	// Status history
	queryInsertStatusChange = `
		INSERT INTO match_status_history (match_id, from_status, to_status, winner, recorded_at)
		VALUES (?, ?, ?, ?, ?)`

	queryListStatusChanges = `
		SELECT id, match_id, from_status, to_status, winner, recorded_at
		FROM match_status_history
		WHERE recorded_at > ?
		ORDER BY recorded_at, id`

	// Balance ledger
	queryCheckLedgerDuplicate = `
		SELECT id FROM balance_ledger WHERE external_tx_id = ?`

	queryInsertLedgerEntry = `
		INSERT INTO balance_ledger (id, user_id, amount, external_tx_id, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	queryGetLedgerEntries = `
		SELECT id, user_id, amount, external_tx_id, reference, created_at
		FROM balance_ledger
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	queryGetBalanceForUpdate = `
		SELECT balance FROM users WHERE id = ?`

	// Payout intents
	queryInsertIntent = `
		INSERT INTO payout_intents (id, match_id, kind, state, payee_a, payee_b, amount, idempotency_key, created_at)
		VALUES (?, ?, ?, 'pending', ?, ?, ?, ?, ?)`

	queryGetIntent = `
		SELECT id, match_id, kind, state, payee_a, payee_b, amount, idempotency_key, tx_ref, created_at, settled_at
		FROM payout_intents
		WHERE match_id = ?`

	querySettleIntent = `
		UPDATE payout_intents
		SET state = 'settled', tx_ref = ?, settled_at = ?
		WHERE id = ? AND state = 'pending'`

	queryListPendingIntents = `
		SELECT id, match_id, kind, state, payee_a, payee_b, amount, idempotency_key, tx_ref, created_at, settled_at
		FROM payout_intents
		WHERE state = 'pending'
		ORDER BY created_at`
)
