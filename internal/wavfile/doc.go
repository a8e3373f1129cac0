// Package wavfile reads and writes the minimal subset of the RIFF/WAVE
// format the sample engine needs: enough of the header to locate the PCM
// payload, and a writer for generating files.
package wavfile
