package autoblock

// incrementScript bumps a violation counter by one, setting its TTL to the
// observation window only on the first increment so the window is
// per-occurrence rather than reset on every violation (§4.5). ARGV[1] is
// the window in seconds.
const incrementScript = `
local window_seconds = tonumber(ARGV[1])
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('EXPIRE', KEYS[1], window_seconds)
end
return count
`
