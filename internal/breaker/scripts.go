package breaker

// State is a Redis hash with fields: state, failures, opened_at (unix
// millis). All three scripts below touch it atomically so breaker checks
// and transitions never race across gateway instances.

// beforeRequestScript evaluates whether a request may proceed. ARGV: now_ms,
// cooldown_ms, ttl_seconds.
const beforeRequestScript = `
local now = tonumber(ARGV[1])
local cooldown_ms = tonumber(ARGV[2])
local ttl_seconds = tonumber(ARGV[3])

local state = redis.call('HGET', KEYS[1], 'state')
if state == false or state == nil then
  state = 'closed'
end

local opened_at = tonumber(redis.call('HGET', KEYS[1], 'opened_at'))
if opened_at == nil then opened_at = 0 end

local allowed = 1
if state == 'open' then
  if now - opened_at >= cooldown_ms then
    state = 'half_open'
    redis.call('HSET', KEYS[1], 'state', state)
    redis.call('EXPIRE', KEYS[1], ttl_seconds)
    allowed = 1
  else
    allowed = 0
  end
end

return {allowed, state}
`

// recordSuccessScript closes the breaker if it was half_open (the probe
// succeeded); a success while closed just resets the failure count. ARGV:
// ttl_seconds.
const recordSuccessScript = `
local ttl_seconds = tonumber(ARGV[1])
local state = redis.call('HGET', KEYS[1], 'state')

if state == 'half_open' then
  redis.call('HSET', KEYS[1], 'state', 'closed', 'failures', 0)
else
  redis.call('HSET', KEYS[1], 'failures', 0)
end
redis.call('EXPIRE', KEYS[1], ttl_seconds)
return redis.status_reply('OK')
`

// recordFailureScript opens the breaker once failures reach threshold
// (closed state), or immediately re-opens it on any failure while
// half_open (the probe failed). ARGV: threshold, now_ms, ttl_seconds.
const recordFailureScript = `
local threshold = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local ttl_seconds = tonumber(ARGV[3])

local state = redis.call('HGET', KEYS[1], 'state')
if state == false or state == nil then state = 'closed' end

if state == 'half_open' then
  redis.call('HSET', KEYS[1], 'state', 'open', 'opened_at', now, 'failures', 0)
else
  local failures = tonumber(redis.call('HGET', KEYS[1], 'failures'))
  if failures == nil then failures = 0 end
  failures = failures + 1

  if failures >= threshold then
    redis.call('HSET', KEYS[1], 'state', 'open', 'opened_at', now, 'failures', failures)
  else
    redis.call('HSET', KEYS[1], 'state', 'closed', 'failures', failures)
  end
end

redis.call('EXPIRE', KEYS[1], ttl_seconds)
return redis.status_reply('OK')
`
