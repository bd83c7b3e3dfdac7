package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

// CreateGroup performs a two-step transaction (1. insert group record;
// 2. insert membership rows) and returns the group id. The creator is
// always inserted as an admin member in the same transaction, so a
// group can never exist without its creator being a member. Additional
// members join with the plain member role via bulk insert.
func (s *Store) CreateGroup(ctx context.Context, name, description string, creator int64, members []int64) (int64, error) {
	s.logger.Debugf("Creating group (%s) by user (id: %d) with members (%v)", name, creator, members)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions or any source comment on Rollback
	defer tx.Rollback(context.Background())

	var id int64
	sql := "insert into groups (group_name, description, created_by, created_at) values ($1, $2, $3, $4) returning id"
	err = tx.QueryRow(ctx, sql, name, description, creator, time.Now()).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return 0, ErrGroupExists
			case pgerrcode.ForeignKeyViolation:
				return 0, ErrUserNotExist
			}
		}
		return 0, err
	}

	rows := []memberRow{{groupId: id, userId: creator, role: RoleAdmin}}
	for _, member := range members {
		if member == creator {
			continue
		}
		rows = append(rows, memberRow{groupId: id, userId: member, role: RoleMember})
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"group_members"}, []string{"group_id", "user_id", "role"}, copyFromMembers(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.ForeignKeyViolation:
				return 0, ErrGroupBadMembers
			case pgerrcode.UniqueViolation:
				return 0, ErrGroupBadMembers
			}
		}
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.logger.Debugf("Created group (%s) with id %d", name, id)

	return id, nil
}

// AddGroupMember inserts a membership row with the provided role.
func (s *Store) AddGroupMember(ctx context.Context, group, user int64, role string) error {
	s.logger.Debugf("Adding user (id: %d) to group (id: %d) as %s", user, group, role)

	sql := "insert into group_members (group_id, user_id, role, joined_at) values ($1, $2, $3, $4)"
	_, err := s.db.Exec(ctx, sql, group, user, role, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrAlreadyMember
			case pgerrcode.ForeignKeyViolation:
				switch pgErr.ConstraintName {
				case "group_members_group_id_fkey":
					return ErrGroupNotExist
				case "group_members_user_id_fkey":
					return ErrUserNotExist
				}
			}
		}
		return err
	}

	return nil
}

// RemoveGroupMember deletes a membership row. Removing a user who is
// not a member is a no-op.
func (s *Store) RemoveGroupMember(ctx context.Context, group, user int64) error {
	s.logger.Debugf("Removing user (id: %d) from group (id: %d)", user, group)

	sql := "delete from group_members where group_id = $1 and user_id = $2"
	_, err := s.db.Exec(ctx, sql, group, user)
	return err
}

// IsMember reports whether the user holds a durable membership in the
// group. Live room subscription is tracked elsewhere; this is the
// authorization source of truth.
func (s *Store) IsMember(ctx context.Context, user, group int64) (bool, error) {
	var i int8
	sql := "select 1 from group_members where user_id = $1 and group_id = $2"
	err := s.db.QueryRow(ctx, sql, user, group).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// GroupByID returns the group with the provided id without its member list.
func (s *Store) GroupByID(ctx context.Context, id int64) (*Group, error) {
	sql := `select id, trim(group_name), coalesce(description, ''), created_by, created_at
			  from groups where id = $1`

	var g Group
	err := s.db.QueryRow(ctx, sql, id).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotExist
		}
		return nil, err
	}

	return &g, nil
}

// GroupsByUserID returns all groups the user is a member of, each with
// all fields and the full member list, ordered by group name.
func (s *Store) GroupsByUserID(ctx context.Context, user int64) ([]Group, error) {
	s.logger.Debugf("Retrieving groups for user (id: %d)", user)

	// check if user exists
	var i int8
	sql := "select 1 from users where id = $1"
	err := s.db.QueryRow(ctx, sql, user).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotExist
		}
		return nil, err
	}

	sql = ` -- groups of a user with aggregated member lists
			with user_groups as (
				select groups.id,
					   groups.group_name,
					   groups.description,
					   groups.created_by,
					   groups.created_at
				  from groups
				  join group_members
					on group_members.group_id = groups.id
				 where group_members.user_id = $1
			),

			members_per_group as (
				select
					group_id,
					array_agg(jsonb_build_object('id', users.id, 'username', trim(users.username), 'is_online', users.is_online)) as members
				from group_members
				join users
				  on group_members.user_id = users.id
			   group by group_id
			)

			select user_groups.id,
				   trim(user_groups.group_name),
				   coalesce(user_groups.description, ''),
				   user_groups.created_by,
				   members_per_group.members,
				   user_groups.created_at
			  from user_groups
			  join members_per_group
				on user_groups.id = members_per_group.group_id
			 order by user_groups.group_name`

	rows, err := s.db.Query(ctx, sql, user)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		var members pgtype.JSONBArray
		err = rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &members, &g.CreatedAt)
		if err != nil {
			return nil, err
		}

		membersJSON := make([]string, len(members.Elements))
		err = members.AssignTo(&membersJSON)
		if err != nil {
			return nil, err
		}

		g.Members = make([]User, len(membersJSON))
		for i, v := range membersJSON {
			err = json.Unmarshal([]byte(v), &g.Members[i])
			if err != nil {
				return nil, err
			}
		}

		groups = append(groups, g)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	s.logger.Debugf("Retrieved %d groups", len(groups))

	return groups, nil
}

// AllGroups returns every group without member lists, ordered by name.
func (s *Store) AllGroups(ctx context.Context) ([]Group, error) {
	sql := `select id, trim(group_name), coalesce(description, ''), created_by, created_at
			  from groups order by group_name`

	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		err = rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.CreatedAt)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return groups, nil
}

// GroupMembers returns the durable membership of a group, admins first.
func (s *Store) GroupMembers(ctx context.Context, group int64) ([]GroupMember, error) {
	// check if group exists
	var i int8
	sql := "select 1 from groups where id = $1"
	err := s.db.QueryRow(ctx, sql, group).Scan(&i)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotExist
		}
		return nil, err
	}

	sql = `select gm.group_id, gm.user_id, trim(u.username), gm.role, gm.joined_at
			 from group_members gm
			 join users u on gm.user_id = u.id
			where gm.group_id = $1
			order by gm.role, u.username`

	rows, err := s.db.Query(ctx, sql, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		err = rows.Scan(&m.GroupID, &m.UserID, &m.Username, &m.Role, &m.JoinedAt)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return members, nil
}
