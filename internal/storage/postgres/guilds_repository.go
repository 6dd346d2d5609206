package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tinychat/server/internal/storage"
)

var _ storage.GuildRepository = (*GuildRepository)(nil)

type GuildRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func scanGuild(row pgx.Row) (*storage.Guild, error) {
	var g storage.Guild
	if err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func scanChannel(row pgx.Row) (*storage.Channel, error) {
	var c storage.Channel
	if err := row.Scan(&c.ID, &c.Name, &c.GuildID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanInvite(row pgx.Row) (*storage.Invite, error) {
	var i storage.Invite
	if err := row.Scan(&i.ID, &i.GuildID, &i.ChannelID, &i.CreatorID, &i.ExpiresAt, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *GuildRepository) CreateGuild(ctx context.Context, guild storage.Guild) (*storage.Guild, error) {
	var created *storage.Guild
	err := inTx(ctx, r.pool, r.tx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO guilds (id, name, owner_id)
VALUES ($1, $2, $3)
RETURNING id, name, owner_id, created_at`,
			guild.ID, guild.Name, guild.OwnerID)
		g, err := scanGuild(row)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO guild_members (guild_id, user_id) VALUES ($1, $2)`,
			g.ID, g.OwnerID,
		); err != nil {
			return err
		}
		created = g
		return nil
	})
	if err != nil {
		if mapped := mapError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("create guild: %w", err)
	}
	return created, nil
}

func (r *GuildRepository) GetGuild(ctx context.Context, id string) (*storage.Guild, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM guilds WHERE id = $1`, id)
	g, err := scanGuild(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get guild: %w", err)
	}
	return g, nil
}

func (r *GuildRepository) UpdateGuild(ctx context.Context, guild storage.Guild) (*storage.Guild, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
UPDATE guilds SET name = $2 WHERE id = $1
RETURNING id, name, owner_id, created_at`,
		guild.ID, guild.Name)
	g, err := scanGuild(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("update guild: %w", err)
	}
	return g, nil
}

func (r *GuildRepository) DeleteGuild(ctx context.Context, id string) error {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `DELETE FROM guilds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete guild: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *GuildRepository) CreateChannel(ctx context.Context, channel storage.Channel) (*storage.Channel, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
INSERT INTO guild_channels (id, name, guild_id)
VALUES ($1, $2, $3)
RETURNING id, name, guild_id, created_at`,
		channel.ID, channel.Name, channel.GuildID)
	c, err := scanChannel(row)
	if err != nil {
		if mapped := mapError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return c, nil
}

func (r *GuildRepository) GetChannel(ctx context.Context, id string) (*storage.Channel, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx,
		`SELECT id, name, guild_id, created_at FROM guild_channels WHERE id = $1`, id)
	c, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return c, nil
}

func (r *GuildRepository) AddMember(ctx context.Context, guildID, userID string) (bool, error) {
	tag, err := pick(r.pool, r.tx).Exec(ctx, `
INSERT INTO guild_members (guild_id, user_id)
VALUES ($1, $2)
ON CONFLICT (guild_id, user_id) DO NOTHING`,
		guildID, userID)
	if err != nil {
		if mapped := mapError(err); mapped != err {
			return false, mapped
		}
		return false, fmt.Errorf("add member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *GuildRepository) IsMember(ctx context.Context, guildID, userID string) (bool, error) {
	var exists bool
	err := pick(r.pool, r.tx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM guild_members WHERE guild_id = $1 AND user_id = $2)`,
		guildID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (r *GuildRepository) CreateInvite(ctx context.Context, invite storage.Invite) (*storage.Invite, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
INSERT INTO invites (id, guild_id, channel_id, creator_id, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, guild_id, channel_id, creator_id, expires_at, created_at`,
		invite.ID, invite.GuildID, invite.ChannelID, invite.CreatorID, invite.ExpiresAt)
	i, err := scanInvite(row)
	if err != nil {
		if mapped := mapError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return i, nil
}

func (r *GuildRepository) GetInvite(ctx context.Context, id string) (*storage.Invite, error) {
	row := pick(r.pool, r.tx).QueryRow(ctx, `
SELECT id, guild_id, channel_id, creator_id, expires_at, created_at
  FROM invites
 WHERE id = $1`, id)
	i, err := scanInvite(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return i, nil
}

func (r *GuildRepository) DeleteExpiredInvites(ctx context.Context, now time.Time) (int64, error) {
	tag, err := pick(r.pool, r.tx).Exec(ctx,
		`DELETE FROM invites WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired invites: %w", err)
	}
	return tag.RowsAffected(), nil
}
