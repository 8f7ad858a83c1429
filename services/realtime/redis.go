package realtimesvc

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
	"github.com/trezcool/drowsiness/core/hrv"
)

var (
	// deletes KEYS[1] only while it holds ARGV[1]
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	// sets field ARGV[1] to ARGV[2] on an existing hash only
	setFieldScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0`)
)

// NewRedisClient connects to redis and waits until it answers.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	err := core.WaitReady(ctx, 30*time.Second, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping timeout")
	}
	return client, nil
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ drowsiness.RealtimeStore = (*Redis)(nil)

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) ReserveAuthCode(ctx context.Context, code, sessionID string) (bool, error) {
	return r.client.SetNX(ctx, authCodeKey(code), sessionID, r.ttl).Result()
}

func (r *Redis) ClaimAuthCode(ctx context.Context, code string) (string, error) {
	sessionID, err := r.client.GetDel(ctx, authCodeKey(code)).Result()
	if err == redis.Nil {
		return "", drowsiness.ErrAuthCodeNotFound
	}
	return sessionID, err
}

func (r *Redis) ReleaseAuthCode(ctx context.Context, code, sessionID string) error {
	return releaseScript.Run(ctx, r.client, []string{authCodeKey(code)}, sessionID).Err()
}

func (r *Redis) PublishPairing(ctx context.Context, p drowsiness.Pairing) error {
	key := pairingKey(p.SessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"session_id":  p.SessionID,
			"student_uid": p.StudentUID,
			"video_id":    p.VideoID,
			"auth_code":   p.AuthCode,
			"paired":      p.Paired,
			"stop":        p.Stop,
		})
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return errors.Wrap(err, "publishing pairing")
}

func (r *Redis) GetPairing(ctx context.Context, sessionID string) (drowsiness.Pairing, error) {
	fields, err := r.client.HGetAll(ctx, pairingKey(sessionID)).Result()
	if err != nil {
		return drowsiness.Pairing{}, errors.Wrap(err, "loading pairing")
	}
	if len(fields) == 0 {
		return drowsiness.Pairing{}, drowsiness.ErrPairingNotFound
	}
	videoID, _ := strconv.Atoi(fields["video_id"])
	paired, _ := strconv.ParseBool(fields["paired"])
	stop, _ := strconv.ParseBool(fields["stop"])
	return drowsiness.Pairing{
		SessionID:  fields["session_id"],
		StudentUID: fields["student_uid"],
		VideoID:    videoID,
		AuthCode:   fields["auth_code"],
		Paired:     paired,
		Stop:       stop,
	}, nil
}

func (r *Redis) setFlag(ctx context.Context, sessionID, field string) error {
	n, err := setFieldScript.Run(ctx, r.client, []string{pairingKey(sessionID)}, field, "1").Int()
	if err != nil {
		return errors.Wrapf(err, "setting %s", field)
	}
	if n == 0 {
		return drowsiness.ErrPairingNotFound
	}
	return nil
}

func (r *Redis) SetPaired(ctx context.Context, sessionID string) error {
	return r.setFlag(ctx, sessionID, "paired")
}

func (r *Redis) SetStop(ctx context.Context, sessionID string) error {
	return r.setFlag(ctx, sessionID, "stop")
}

func (r *Redis) AppendPPGSamples(ctx context.Context, sessionID string, samples ...hrv.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(samples))
	for _, s := range samples {
		data, err := encodeSample(s)
		if err != nil {
			return errors.Wrap(err, "encoding PPG sample")
		}
		values[uuid.New().String()] = data
	}
	key := ppgKey(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return errors.Wrap(err, "appending PPG samples")
}

func (r *Redis) CountPPGSamples(ctx context.Context, sessionID string) (int64, error) {
	return r.client.HLen(ctx, ppgKey(sessionID)).Result()
}

// PPGSamples returns every sample of the session. Unreadable records come back flagged as errors.
func (r *Redis) PPGSamples(ctx context.Context, sessionID string) ([]hrv.Sample, error) {
	vals, err := r.client.HVals(ctx, ppgKey(sessionID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "loading PPG samples")
	}
	samples := make([]hrv.Sample, 0, len(vals))
	for _, v := range vals {
		s, err := decodeSample([]byte(v))
		if err != nil {
			s = hrv.Sample{IsError: true}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func (r *Redis) DeleteSession(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, pairingKey(sessionID), ppgKey(sessionID)).Err()
}
