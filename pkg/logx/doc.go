// Package logx configures deskshell's structured logging.
//
// Components log through logx.Logger, a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + file:line caller)
//   - File output is JSON, one event per line
//   - The root can be swapped at runtime (config reload) without replacing
//     the Logger values handed out to components
package logx
